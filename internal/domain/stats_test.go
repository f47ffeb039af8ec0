package domain

import (
	"encoding/json"
	"testing"
)

func TestAverageCents(t *testing.T) {
	tests := []struct {
		name  string
		sum   Cents
		count int64
		want  Cents
	}{
		{"three items", 6000, 3, 2000},
		{"empty menu", 0, 0, 0},
		{"round half up", 1001, 2, 501},
		{"round down", 1000, 3, 333},
		{"round up", 2000, 3, 667},
		{"single item", 1999, 1, 1999},
		{"negative", -1001, 2, -501},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AverageCents(tt.sum, tt.count)
			if got != tt.want {
				t.Errorf("AverageCents(%d, %d) = %d, want %d", tt.sum, tt.count, got, tt.want)
			}
		})
	}
}

func TestParseCents(t *testing.T) {
	tests := []struct {
		in      string
		want    Cents
		wantErr bool
	}{
		{"20.00", 2000, false},
		{"20", 2000, false},
		{"0.5", 50, false},
		{".07", 7, false},
		{"-3.07", -307, false},
		{"12.345", 1235, false},
		{"12.344", 1234, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.x", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCents(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCents(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCents(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCents(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCents_String(t *testing.T) {
	tests := map[Cents]string{
		0:     "0.00",
		5:     "0.05",
		2000:  "20.00",
		1999:  "19.99",
		-307:  "-3.07",
		12345: "123.45",
	}
	for c, want := range tests {
		if got := c.String(); got != want {
			t.Errorf("Cents(%d).String() = %q, want %q", int64(c), got, want)
		}
	}
}

func TestRestaurantStats_JSON(t *testing.T) {
	stats := RestaurantStats{RestaurantID: 42, AvgPrice: 2000, TotalItems: 3}

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"restaurant_id":42,"avg_price":20.00,"total_items":3}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}

	// Цена остаётся точной при обратном чтении
	var decoded RestaurantStats
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != stats {
		t.Errorf("expected %+v, got %+v", stats, decoded)
	}
}

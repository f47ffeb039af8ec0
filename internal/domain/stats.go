package domain

import (
	"fmt"
	"strconv"
)

// Cents — денежная сумма в сотых долях.
//
// Цены меню хранятся как NUMERIC(10,2), поэтому вся арифметика
// ведётся в целых центах. В float ничего не превращается:
// в JSON сумма пишется числом с двумя знаками после точки.
type Cents int64

// AverageCents возвращает среднее sum/count, округлённое half-up.
// Для count <= 0 возвращает 0.
func AverageCents(sum Cents, count int64) Cents {
	if count <= 0 {
		return 0
	}
	if sum < 0 {
		return -AverageCents(-sum, count)
	}
	return Cents((2*int64(sum) + count) / (2 * count))
}

// ParseCents парсит десятичную строку вида "12.5" или "-3.07".
// Знаки после второго отбрасываются с округлением half-up.
func ParseCents(s string) (Cents, error) {
	if s == "" {
		return 0, fmt.Errorf("parse cents: empty string")
	}

	neg := false
	if s[0] == '-' || s[0] == '+' {
		neg = s[0] == '-'
		s = s[1:]
	}

	whole, frac := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			whole, frac = s[:i], s[i+1:]
			break
		}
	}
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cents %q: %w", s, err)
	}

	var cents int64
	for i := 0; i < 2; i++ {
		cents *= 10
		if i < len(frac) {
			d := frac[i]
			if d < '0' || d > '9' {
				return 0, fmt.Errorf("parse cents %q: invalid digit", s)
			}
			cents += int64(d - '0')
		}
	}
	if len(frac) > 2 {
		if frac[2] < '0' || frac[2] > '9' {
			return 0, fmt.Errorf("parse cents %q: invalid digit", s)
		}
		if frac[2] >= '5' {
			cents++
		}
	}

	total := units*100 + cents
	if neg {
		total = -total
	}
	return Cents(total), nil
}

// String форматирует сумму с двумя знаками: "20.00".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON пишет сумму как JSON-число с двумя знаками.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalJSON читает JSON-число (или строку) в центы.
func (c *Cents) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseCents(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// RestaurantStats — результат recompute_restaurant_stats.
type RestaurantStats struct {
	RestaurantID int64 `json:"restaurant_id"`
	AvgPrice     Cents `json:"avg_price"`
	TotalItems   int64 `json:"total_items"`
}

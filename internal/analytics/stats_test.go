package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/repo"
	"github.com/shaiso/menustats/internal/repo/repotest"
	"github.com/shaiso/menustats/internal/worker"
)

func newMessage(t *testing.T, args ...any) *mq.TaskMessage {
	t.Helper()
	msg, err := mq.NewTaskMessage(TaskRecomputeRestaurantStats, args...)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestStatsExecutor_Execute(t *testing.T) {
	db := repotest.New(t)
	db.AddRestaurant(42, true)
	db.AddMenuItems(42, "10.00", "20.00", "30.00")
	db.AddRestaurant(7, true)
	db.AddMenuItems(7, "0.01", "0.02")
	db.AddRestaurant(8, true)

	sessions := db.Sessions()
	executor := NewStatsExecutor(sessions, nil)

	tests := []struct {
		name         string
		restaurantID int64
		want         string
	}{
		{"three items", 42, `{"restaurant_id":42,"avg_price":20.00,"total_items":3}`},
		{"half cent rounds up", 7, `{"restaurant_id":7,"avg_price":0.02,"total_items":2}`},
		{"empty menu", 8, `{"restaurant_id":8,"avg_price":0.00,"total_items":0}`},
		{"unknown restaurant", 999, `{"restaurant_id":999,"avg_price":0.00,"total_items":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executor.Execute(context.Background(), newMessage(t, tt.restaurantID))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	// Все сессии вернулись в пул
	if inUse := sessions.Stats().InUse; inUse != 0 {
		t.Errorf("expected no sessions in use, got %d", inUse)
	}
}

func TestStatsExecutor_Idempotent(t *testing.T) {
	db := repotest.New(t)
	db.AddRestaurant(42, true)
	db.AddMenuItems(42, "10.00", "20.00", "30.00")

	executor := NewStatsExecutor(db.Sessions(), nil)
	msg := newMessage(t, 42)

	first, err := executor.Execute(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := executor.Execute(context.Background(), msg)
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("repeated execution must be byte-identical: %s vs %s", first, second)
	}
}

func TestParseRestaurantID(t *testing.T) {
	tests := []struct {
		name    string
		args    []json.RawMessage
		want    int64
		wantErr bool
	}{
		{"valid", []json.RawMessage{json.RawMessage(`42`)}, 42, false},
		{"no args", nil, 0, true},
		{"two args", []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)}, 0, true},
		{"zero", []json.RawMessage{json.RawMessage(`0`)}, 0, true},
		{"negative", []json.RawMessage{json.RawMessage(`-5`)}, 0, true},
		{"float", []json.RawMessage{json.RawMessage(`4.5`)}, 0, true},
		{"text", []json.RawMessage{json.RawMessage(`"abc"`)}, 0, true},
		{"null", []json.RawMessage{json.RawMessage(`null`)}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &mq.TaskMessage{ID: "t", TaskName: TaskRecomputeRestaurantStats, Args: tt.args}

			got, err := ParseRestaurantID(msg)
			if tt.wantErr {
				if !worker.IsPermanent(err) {
					t.Errorf("expected permanent error, got %v", err)
				}
				if !errors.Is(err, mq.ErrBadArgument) {
					t.Errorf("expected ErrBadArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

// failingSessions отдаёт сессии, у которых запрос падает.
type failingSessions struct {
	acquired, released int
}

type failingSession struct{ p *failingSessions }

func (s *failingSession) MenuTotals(context.Context, int64) (repo.MenuTotals, error) {
	return repo.MenuTotals{}, errors.New("connection reset by peer")
}

func (s *failingSession) RestaurantIDs(context.Context) ([]int64, error) { return nil, nil }

func (s *failingSession) Release() { s.p.released++ }

func (p *failingSessions) Acquire(context.Context) (repo.Session, error) {
	p.acquired++
	return &failingSession{p: p}, nil
}

func (p *failingSessions) Close() {}

func TestStatsExecutor_ReleasesSessionOnError(t *testing.T) {
	sessions := &failingSessions{}
	executor := NewStatsExecutor(sessions, nil)

	_, err := executor.Execute(context.Background(), newMessage(t, 42))
	if err == nil {
		t.Fatal("expected error")
	}
	if worker.IsPermanent(err) {
		t.Error("database errors must be retried, not fail fast")
	}
	if sessions.acquired != 1 || sessions.released != 1 {
		t.Errorf("expected 1 acquire and 1 release, got %d/%d", sessions.acquired, sessions.released)
	}
}

func TestStatsExecutor_ValidationDoesNotAcquire(t *testing.T) {
	sessions := &failingSessions{}
	executor := NewStatsExecutor(sessions, nil)

	if _, err := executor.Execute(context.Background(), newMessage(t, "abc")); !worker.IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if sessions.acquired != 0 {
		t.Error("invalid arguments must not take a session")
	}
}

func TestStatsExecutor_CanceledContext(t *testing.T) {
	db := repotest.New(t)
	db.AddRestaurant(42, true)
	sessions := db.Sessions()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	if _, err := NewStatsExecutor(sessions, nil).Execute(ctx, newMessage(t, 42)); err == nil {
		t.Error("expected error on expired context")
	}
	if inUse := sessions.Stats().InUse; inUse != 0 {
		t.Errorf("expected no sessions in use, got %d", inUse)
	}
}

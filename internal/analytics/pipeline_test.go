package analytics_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/menustats/internal/analytics"
	"github.com/shaiso/menustats/internal/dispatch"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/repo"
	"github.com/shaiso/menustats/internal/repo/repotest"
	"github.com/shaiso/menustats/internal/results"
	"github.com/shaiso/menustats/internal/worker"
)

// downSessions — база, к которой нельзя подключиться.
type downSessions struct {
	acquires atomic.Int32
}

func (s *downSessions) Acquire(context.Context) (repo.Session, error) {
	s.acquires.Add(1)
	return nil, errors.New("connection refused")
}

func (s *downSessions) Close() {}

// startPipeline собирает Dispatcher → MemoryBroker → Worker Pool → Result Store
// вокруг настоящего executor'а пересчёта.
func startPipeline(t *testing.T, sessions repo.SessionProvider, maxRetries int) *dispatch.Dispatcher {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	store := results.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { store.Close() })

	broker := mq.NewMemoryBroker(time.Minute)
	t.Cleanup(func() { broker.Close() })

	registry := worker.NewRegistry()
	analytics.Register(registry, sessions, logger)

	pool := worker.New(worker.Config{
		Broker:      broker,
		Store:       store,
		Registry:    registry,
		MaxRetries:  maxRetries,
		BackoffBase: 5 * time.Millisecond,
		BackoffMax:  20 * time.Millisecond,
		Logger:      logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("pool run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("pool did not stop")
		}
	})

	return dispatch.New(dispatch.Config{Broker: broker, Store: store, Logger: logger})
}

// waitView опрашивает статус, пока task не завершится.
func waitView(t *testing.T, d *dispatch.Dispatcher, taskID string) dispatch.StatusView {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := d.Status(context.Background(), taskID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if rec.IsFinished() {
			return dispatch.Render(rec)
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("task %s did not finish", taskID)
	return dispatch.StatusView{}
}

func TestPipeline_RecomputeStats(t *testing.T) {
	db := repotest.New(t)
	db.AddRestaurant(42, true)
	db.AddMenuItems(42, "10.00", "20.00", "30.00")
	db.AddRestaurant(5, true)

	d := startPipeline(t, db.Sessions(), 5)

	tests := []struct {
		name         string
		restaurantID int64
		want         string
	}{
		{"three items", 42, `{"restaurant_id":42,"avg_price":20.00,"total_items":3}`},
		{"empty menu", 5, `{"restaurant_id":5,"avg_price":0.00,"total_items":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taskID, err := d.Enqueue(context.Background(), analytics.TaskRecomputeRestaurantStats, tt.restaurantID)
			if err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			view := waitView(t, d, taskID)

			if view.State != "SUCCESS" {
				t.Fatalf("expected SUCCESS, got %s (%s: %s)", view.State, view.ErrorType, view.Error)
			}
			if string(view.Result) != tt.want {
				t.Errorf("got %s, want %s", view.Result, tt.want)
			}
			if view.Error != "" || view.ErrorType != "" {
				t.Errorf("successful task must not carry an error: %+v", view)
			}
		})
	}
}

func TestPipeline_DatabaseDownFails(t *testing.T) {
	const maxRetries = 2

	sessions := &downSessions{}
	d := startPipeline(t, sessions, maxRetries)

	taskID, err := d.Enqueue(context.Background(), analytics.TaskRecomputeRestaurantStats, 42)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	view := waitView(t, d, taskID)

	if view.State != "FAILURE" {
		t.Fatalf("expected FAILURE, got %s", view.State)
	}
	if view.Error == "" || view.ErrorType == "" {
		t.Errorf("expected error and error_type, got %+v", view)
	}
	if view.Result != nil {
		t.Errorf("failed task must not carry a result: %s", view.Result)
	}
	if n := sessions.acquires.Load(); n != maxRetries+1 {
		t.Errorf("expected %d attempts, got %d", maxRetries+1, n)
	}
}

func TestPipeline_InvalidArgumentFailsFast(t *testing.T) {
	sessions := &downSessions{}
	d := startPipeline(t, sessions, 5)

	taskID, err := d.Enqueue(context.Background(), analytics.TaskRecomputeRestaurantStats, "abc")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	view := waitView(t, d, taskID)

	if view.State != "FAILURE" || view.ErrorType != worker.KindValidation {
		t.Errorf("expected FAILURE %s, got %s %s", worker.KindValidation, view.State, view.ErrorType)
	}
	if sessions.acquires.Load() != 0 {
		t.Error("validation must not touch the database")
	}
}

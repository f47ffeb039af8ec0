package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/menustats/internal/domain"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/results"
)

func newTestDispatcher(t *testing.T, broker mq.Broker) (*Dispatcher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := results.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	t.Cleanup(func() { store.Close() })
	return New(Config{Broker: broker, Store: store}), mr
}

func TestEnqueue(t *testing.T) {
	broker := mq.NewMemoryBroker(0)
	defer broker.Close()
	d, _ := newTestDispatcher(t, broker)
	ctx := context.Background()

	id, err := d.Enqueue(ctx, "analytics.recompute_restaurant_stats", 42)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("expected task id")
	}

	// Запись видна сразу после постановки
	rec, err := d.Status(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != domain.TaskStatePending || rec.TaskName != "analytics.recompute_restaurant_stats" {
		t.Errorf("expected PENDING record, got %+v", rec)
	}

	// Сообщение в очереди с тем же id и аргументами
	sub, err := broker.Subscribe(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	delivery, err := sub.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if delivery.Message.ID != id {
		t.Errorf("message id %s != task id %s", delivery.Message.ID, id)
	}
	if n, err := delivery.Message.ArgInt64(0); err != nil || n != 42 {
		t.Errorf("expected arg 42, got %d (%v)", n, err)
	}
	if delivery.Message.RetryCount != 0 {
		t.Errorf("expected retry_count 0, got %d", delivery.Message.RetryCount)
	}
}

func TestEnqueue_UniqueIDs(t *testing.T) {
	broker := mq.NewMemoryBroker(0)
	defer broker.Close()
	d, _ := newTestDispatcher(t, broker)

	seen := make(map[string]bool)
	for range 50 {
		id, err := d.Enqueue(context.Background(), "x", 1)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id] {
			t.Fatalf("duplicate task id %s", id)
		}
		seen[id] = true
	}
}

// failingBroker не принимает сообщения.
type failingBroker struct{ mq.Broker }

func (failingBroker) Publish(context.Context, *mq.TaskMessage) error {
	return errors.New("connection refused")
}

func TestEnqueue_PublishFails(t *testing.T) {
	d, mr := newTestDispatcher(t, failingBroker{})

	_, err := d.Enqueue(context.Background(), "x", 1)
	if !errors.Is(err, ErrEnqueue) {
		t.Fatalf("expected ErrEnqueue, got %v", err)
	}

	// Запись не остаётся навсегда в PENDING
	keys := mr.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one record, got %v", keys)
	}

	rec, err := d.Status(context.Background(), strings.TrimPrefix(keys[0], results.Key("")))
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != domain.TaskStateFailure || rec.Error.Type != KindEnqueueError {
		t.Errorf("expected FAILURE %s, got %s %+v", KindEnqueueError, rec.State, rec.Error)
	}
}

func TestStatus_Unknown(t *testing.T) {
	d, _ := newTestDispatcher(t, mq.NewMemoryBroker(0))

	rec, err := d.Status(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if rec.State != domain.TaskStatePending {
		t.Errorf("unknown id must read as PENDING, got %s", rec.State)
	}
}

func TestRender(t *testing.T) {
	success := domain.NewPendingRecord("t1", "x")
	success.MarkStarted(0)
	success.MarkSucceeded(json.RawMessage(`{"restaurant_id":42,"avg_price":20.00,"total_items":3}`))

	failure := domain.NewPendingRecord("t2", "x")
	failure.MarkStarted(0)
	failure.MarkFailed(domain.TaskFailure{Message: "connection reset", Type: "TaskError"})

	started := domain.NewPendingRecord("t3", "x")
	started.MarkStarted(0)

	tests := []struct {
		name string
		rec  *domain.TaskRecord
		want string
	}{
		{"success", success, `{"task_id":"t1","state":"SUCCESS","result":{"restaurant_id":42,"avg_price":20.00,"total_items":3}}`},
		{"failure", failure, `{"task_id":"t2","state":"FAILURE","error":"connection reset","error_type":"TaskError"}`},
		{"started", started, `{"task_id":"t3","state":"STARTED"}`},
		{"pending", &domain.TaskRecord{TaskID: "t4", State: domain.TaskStatePending}, `{"task_id":"t4","state":"PENDING"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(Render(tt.rec))
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

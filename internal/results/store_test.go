package results

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/menustats/internal/domain"
)

func newTestStore(t *testing.T, expires time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := New(client, expires)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStore_GetUnknownIsPending(t *testing.T) {
	store, _ := newTestStore(t, 0)

	rec, err := store.Get(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.State != domain.TaskStatePending {
		t.Errorf("expected PENDING for unknown id, got %s", rec.State)
	}
	if rec.TaskID != "never-seen" {
		t.Errorf("expected task id echoed, got %q", rec.TaskID)
	}
	if rec.Result != nil || rec.Error != nil {
		t.Error("pending record must have neither result nor error")
	}
}

func TestRedisStore_SaveAndGet(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	rec := domain.NewPendingRecord("t1", "analytics.recompute_restaurant_stats")
	rec.MarkStarted(0)
	rec.MarkSucceeded(json.RawMessage(`{"restaurant_id":42,"avg_price":20.00,"total_items":3}`))

	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.TaskStateSuccess {
		t.Errorf("expected SUCCESS, got %s", got.State)
	}
	if string(got.Result) != `{"restaurant_id":42,"avg_price":20.00,"total_items":3}` {
		t.Errorf("result not preserved byte for byte: %s", got.Result)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}
}

func TestRedisStore_SaveRejectsInvalidRecord(t *testing.T) {
	store, _ := newTestStore(t, 0)

	rec := &domain.TaskRecord{TaskID: "t1", State: domain.TaskStateSuccess}
	if err := store.Save(context.Background(), rec); !errors.Is(err, domain.ErrRecordInvariant) {
		t.Errorf("expected ErrRecordInvariant, got %v", err)
	}

	if err := store.Save(context.Background(), &domain.TaskRecord{State: domain.TaskStatePending}); !errors.Is(err, ErrEmptyTaskID) {
		t.Errorf("expected ErrEmptyTaskID, got %v", err)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, domain.NewPendingRecord("t1", "x")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if ttl := mr.TTL(Key("t1")); ttl != time.Minute {
		t.Errorf("expected TTL 1m, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)

	rec, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.State != domain.TaskStatePending || rec.TaskName != "" {
		t.Errorf("expired record should read as unknown PENDING, got %+v", rec)
	}
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := newTestStore(t, 0)
	mr.Set(Key("t1"), "not json")

	if _, err := store.Get(context.Background(), "t1"); err == nil {
		t.Error("expected error for corrupt value")
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t, 0)
	mr.Close()

	if _, err := store.Get(context.Background(), "t1"); err == nil {
		t.Error("expected error when redis is down")
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Error("expected ping error when redis is down")
	}
}

func TestOpen_BadURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{URL: "http://nope"}); err == nil {
		t.Error("expected error for non-redis url")
	}
}

func TestOpen_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := Open(context.Background(), Config{URL: "redis://" + mr.Addr() + "/0"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if store.expires != DefaultExpires {
		t.Errorf("expected default expiry, got %v", store.expires)
	}
}

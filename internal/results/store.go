// Package results хранит состояние и результат task в Redis.
//
// Ключ: menustats:task:<task_id>, значение — JSON TaskRecord,
// TTL — политика хранения результатов. Отсутствующий ключ
// читается как PENDING: неизвестный task_id не отличается
// от ещё не запущенного.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/menustats/internal/domain"
)

const (
	keyPrefix = "menustats:task:"

	// DefaultExpires — сколько хранится запись после последнего перехода.
	DefaultExpires = 24 * time.Hour
)

// ErrEmptyTaskID — пустой task_id.
var ErrEmptyTaskID = errors.New("empty task id")

// RedisStore — Result Store поверх Redis.
type RedisStore struct {
	client  redis.UniversalClient
	expires time.Duration
}

// Config — конфигурация RedisStore.
type Config struct {
	// URL — redis://[user:password@]host:port/db
	URL string

	// Expires — TTL записи (default: 24h).
	Expires time.Duration
}

// Open подключается к Redis по URL.
func Open(ctx context.Context, cfg Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	store := New(redis.NewClient(opts), cfg.Expires)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		store.Close()
		return nil, err
	}

	return store, nil
}

// New создаёт RedisStore поверх готового клиента.
func New(client redis.UniversalClient, expires time.Duration) *RedisStore {
	if expires <= 0 {
		expires = DefaultExpires
	}
	return &RedisStore{client: client, expires: expires}
}

// Key возвращает ключ записи task.
func Key(taskID string) string {
	return keyPrefix + taskID
}

// Get возвращает запись task. Для неизвестного id — PENDING.
func (s *RedisStore) Get(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	if taskID == "" {
		return nil, ErrEmptyTaskID
	}

	data, err := s.client.Get(ctx, Key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &domain.TaskRecord{TaskID: taskID, State: domain.TaskStatePending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}

	var rec domain.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", taskID, err)
	}
	return &rec, nil
}

// Save записывает запись целиком и продлевает TTL.
//
// Записи одного task_id сериализует брокер: в полёте только одна доставка.
func (s *RedisStore) Save(ctx context.Context, rec *domain.TaskRecord) error {
	if rec.TaskID == "" {
		return ErrEmptyTaskID
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("save task %s: %w", rec.TaskID, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", rec.TaskID, err)
	}

	if err := s.client.Set(ctx, Key(rec.TaskID), data, s.expires).Err(); err != nil {
		return fmt.Errorf("set task %s: %w", rec.TaskID, err)
	}
	return nil
}

// Ping проверяет соединение.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close закрывает клиент.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

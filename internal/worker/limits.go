package worker

import (
	"context"
	"math"
	"time"
)

type softLimitKey struct{}

// withSoftLimit добавляет в ctx сигнал, который сработает в момент at.
// Нулевой at — без лимита, прошедший — сигнал уже сработал.
// stop освобождает таймер.
func withSoftLimit(ctx context.Context, at time.Time) (context.Context, func()) {
	if at.IsZero() {
		return ctx, func() {}
	}

	ch := make(chan struct{})
	timer := time.AfterFunc(time.Until(at), func() { close(ch) })

	return context.WithValue(ctx, softLimitKey{}, (<-chan struct{})(ch)), func() { timer.Stop() }
}

// SoftLimit возвращает канал, который закрывается по soft time limit.
//
// Executor после этого должен освободить ресурсы и вернуть ErrSoftTimeLimit,
// но может и довести работу до конца. Без лимита канал nil и никогда не сработает.
func SoftLimit(ctx context.Context) <-chan struct{} {
	ch, _ := ctx.Value(softLimitKey{}).(<-chan struct{})
	return ch
}

// SoftLimitExceeded проверяет без блокировки, сработал ли soft time limit.
func SoftLimitExceeded(ctx context.Context) bool {
	select {
	case <-SoftLimit(ctx):
		return true
	default:
		return false
	}
}

// Backoff вычисляет задержку перед retry номер retryCount:
// base * 2^retryCount, не больше max. max <= 0 — без ограничения.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 0; i < retryCount; i++ {
		if delay > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}

	if max > 0 && delay > max {
		delay = max
	}
	return delay
}

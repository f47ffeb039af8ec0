package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/menustats/internal/domain"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/telemetry"
)

// Default configuration values.
const (
	defaultConcurrency   = 1
	defaultPrefetch      = 1
	defaultSoftTimeLimit = 240 * time.Second
	defaultHardTimeLimit = 300 * time.Second
	defaultBackoffBase   = time.Second
	defaultBackoffMax    = 10 * time.Minute
)

// Store — Result Store с точки зрения воркера.
type Store interface {
	Get(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	Save(ctx context.Context, rec *domain.TaskRecord) error
}

// Pool — Worker Pool.
//
// Держит Concurrency слотов, у каждого своя подписка с prefetch.
// Слот берёт сообщение, выполняет executor с time limits,
// переводит запись в Result Store и только потом делает ack.
// Если процесс упал до ack, брокер доставит сообщение повторно.
type Pool struct {
	broker   mq.Broker
	store    Store
	registry *Registry

	concurrency     int
	prefetch        int
	maxRetries      int
	maxRedeliveries int
	softTimeLimit   time.Duration
	hardTimeLimit   time.Duration
	backoffBase     time.Duration
	backoffMax      time.Duration

	logger *slog.Logger

	// unavailable — сколько доставок подряд вернулось из-за недоступности
	// Result Store или брокера.
	unavailable atomic.Int32
}

// Config — конфигурация Pool.
type Config struct {
	Broker   mq.Broker
	Store    Store
	Registry *Registry

	// Concurrency — количество слотов (default: 1).
	Concurrency int

	// Prefetch — сколько неподтверждённых сообщений держит слот (default: 1).
	Prefetch int

	// MaxRetries — сколько раз повторять после ошибки executor'а.
	// 0 — без повторов.
	MaxRetries int

	// MaxRedeliveries — сколько раз за всё время жизни task может быть
	// прерван hard time limit, прежде чем уйдёт в FAILURE (default: max(MaxRetries, 1)).
	MaxRedeliveries int

	// SoftTimeLimit — сигнал executor'у свернуться (default: 240s).
	SoftTimeLimit time.Duration

	// HardTimeLimit — принудительное прерывание попытки (default: 300s).
	HardTimeLimit time.Duration

	// BackoffBase, BackoffMax — задержка retry: min(base * 2^n, max).
	BackoffBase time.Duration
	BackoffMax  time.Duration

	Logger *slog.Logger
}

// New создаёт Pool.
func New(cfg Config) *Pool {
	p := &Pool{
		broker:          cfg.Broker,
		store:           cfg.Store,
		registry:        cfg.Registry,
		concurrency:     cfg.Concurrency,
		prefetch:        cfg.Prefetch,
		maxRetries:      max(cfg.MaxRetries, 0),
		maxRedeliveries: cfg.MaxRedeliveries,
		softTimeLimit:   cfg.SoftTimeLimit,
		hardTimeLimit:   cfg.HardTimeLimit,
		backoffBase:     cfg.BackoffBase,
		backoffMax:      cfg.BackoffMax,
		logger:          cfg.Logger,
	}

	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	if p.prefetch <= 0 {
		p.prefetch = defaultPrefetch
	}
	if p.maxRedeliveries <= 0 {
		p.maxRedeliveries = max(p.maxRetries, 1)
	}
	if p.softTimeLimit <= 0 {
		p.softTimeLimit = defaultSoftTimeLimit
	}
	if p.hardTimeLimit <= 0 {
		p.hardTimeLimit = defaultHardTimeLimit
	}
	if p.backoffBase <= 0 {
		p.backoffBase = defaultBackoffBase
	}
	if p.backoffMax <= 0 {
		p.backoffMax = defaultBackoffMax
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Run запускает слоты и блокируется до отмены ctx.
//
// Возвращает nil при отмене ctx или закрытии брокера,
// иначе первую ошибку подписки.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("starting worker pool",
		"concurrency", p.concurrency,
		"prefetch", p.prefetch,
		"max_retries", p.maxRetries,
		"soft_time_limit", p.softTimeLimit,
		"hard_time_limit", p.hardTimeLimit,
		"tasks", p.registry.Names(),
	)

	g, ctx := errgroup.WithContext(ctx)
	for slot := range p.concurrency {
		g.Go(func() error {
			return p.runSlot(ctx, slot)
		})
	}

	err := g.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

// runSlot — цикл одного слота.
func (p *Pool) runSlot(ctx context.Context, slot int) error {
	sub, err := p.broker.Subscribe(ctx, p.prefetch)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("slot %d subscribe: %w", slot, err)
	}
	defer sub.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}

		delivery, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, mq.ErrBrokerClosed) {
				return nil
			}
			return fmt.Errorf("slot %d next: %w", slot, err)
		}

		p.Handle(ctx, delivery)
	}
}

// Handle обрабатывает одну доставку и подтверждает её.
//
// Time limits отсчитываются от момента вызова Handle.
func (p *Pool) Handle(ctx context.Context, d *mq.Delivery) {
	dequeued := time.Now()
	msg := &d.Message
	logger := telemetry.WithTaskID(p.logger, msg.ID, msg.TaskName)

	outcome, err := p.process(ctx, d, dequeued, logger)
	telemetry.TasksTotal.WithLabelValues(msg.TaskName, outcome).Inc()

	if outcome == telemetry.OutcomeAbandoned {
		if err != nil {
			logger.Warn("task requeued", "retry_count", msg.RetryCount, "reason", err)
		}
		if errors.Is(err, ErrUnavailable) {
			p.pause(ctx, logger)
		}
		if nackErr := d.Nack(true); nackErr != nil {
			logger.Warn("failed to nack delivery", "error", nackErr)
		}
		return
	}
	p.unavailable.Store(0)

	if ackErr := d.Ack(); ackErr != nil {
		// Сообщение вернётся повторно, запись уже в финальном или RETRY состоянии
		logger.Warn("failed to ack delivery", "error", ackErr)
	}
}

// pause придерживает доставку перед возвратом в очередь, пока Result Store
// или брокер недоступны. Задержка растёт с каждым сбоем подряд.
func (p *Pool) pause(ctx context.Context, logger *slog.Logger) {
	n := int(p.unavailable.Add(1)) - 1
	delay := Backoff(p.backoffBase, p.backoffMax, n)

	logger.Debug("pausing before requeue", "delay", delay, "failures_in_row", n+1)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// process проводит task по состояниям. Исход OutcomeAbandoned означает,
// что доставку надо вернуть в очередь, остальные исходы подтверждаются.
func (p *Pool) process(ctx context.Context, d *mq.Delivery, dequeued time.Time, logger *slog.Logger) (string, error) {
	msg := &d.Message

	rec, err := p.store.Get(ctx, msg.ID)
	if err != nil {
		return telemetry.OutcomeAbandoned, fmt.Errorf("%w: load record: %w", ErrUnavailable, err)
	}
	if rec.TaskName == "" {
		rec.TaskName = msg.TaskName
	}

	// Повторная доставка уже завершённой task
	if rec.IsFinished() {
		logger.Info("duplicate delivery of finished task, skipping", "state", rec.State)
		return telemetry.OutcomeDuplicate, nil
	}

	// Доставка с retry_count меньше записанного: следующий retry уже
	// запланирован, а ack этой доставки потерялся
	if msg.RetryCount < rec.RetryCount {
		logger.Info("stale delivery, newer retry already scheduled",
			"retry_count", msg.RetryCount,
			"record_retry_count", rec.RetryCount,
			"state", rec.State,
		)
		return telemetry.OutcomeDuplicate, nil
	}

	// Каждая попытка, прерванная hard limit, увеличивает Attempts без
	// retry_count, так что разность — прерванные попытки за всё время task
	if abandoned := rec.Attempts - msg.RetryCount; abandoned > p.maxRedeliveries {
		failErr := fmt.Errorf("%w: attempt abandoned %d times", ErrHardTimeLimit, abandoned)
		return p.fail(ctx, rec, msg, failErr, logger)
	}

	executor, err := p.registry.Get(msg.TaskName)
	if err != nil {
		rec.MarkStarted(msg.RetryCount)
		return p.fail(ctx, rec, msg, err, logger)
	}

	rec.MarkStarted(msg.RetryCount)
	if err := p.store.Save(ctx, rec); err != nil {
		return telemetry.OutcomeAbandoned, fmt.Errorf("%w: save started: %w", ErrUnavailable, err)
	}

	logger.Info("task started",
		"retry_count", msg.RetryCount,
		"attempt", rec.Attempts,
		"redelivered", d.Redelivered,
	)

	result, execErr := p.execute(ctx, executor, msg, dequeued)

	switch {
	case execErr == nil:
		rec.MarkSucceeded(result)
		if err := p.store.Save(ctx, rec); err != nil {
			return telemetry.OutcomeAbandoned, fmt.Errorf("%w: save success: %w", ErrUnavailable, err)
		}
		logger.Info("task succeeded", "attempt", rec.Attempts)
		return telemetry.OutcomeSuccess, nil

	case ctx.Err() != nil:
		// Остановка воркера: попытка не считается ошибкой task
		return telemetry.OutcomeAbandoned, ctx.Err()

	case errors.Is(execErr, ErrHardTimeLimit):
		logger.Warn("hard time limit exceeded, attempt abandoned",
			"hard_time_limit", p.hardTimeLimit,
			"attempt", rec.Attempts,
		)
		return telemetry.OutcomeAbandoned, execErr

	case IsPermanent(execErr):
		return p.fail(ctx, rec, msg, execErr, logger)

	case msg.RetryCount < p.maxRetries:
		return p.retry(ctx, rec, msg, execErr, logger)

	default:
		logger.Warn("retries exhausted", "max_retries", p.maxRetries)
		return p.fail(ctx, rec, msg, execErr, logger)
	}
}

// execute вызывает executor в отдельной горутине.
//
// Оба лимита считаются от dequeued. По hard time limit ctx executor'а
// отменяется, а результат горутины больше не ждём.
func (p *Pool) execute(ctx context.Context, executor Executor, msg *mq.TaskMessage, dequeued time.Time) (json.RawMessage, error) {
	hardCtx, cancel := context.WithDeadline(ctx, dequeued.Add(p.hardTimeLimit))
	defer cancel()

	execCtx, stopSoft := withSoftLimit(hardCtx, dequeued.Add(p.softTimeLimit))
	defer stopSoft()

	type outcome struct {
		result json.RawMessage
		err    error
	}
	done := make(chan outcome, 1)

	telemetry.Inflight.Inc()
	defer telemetry.Inflight.Dec()

	start := time.Now()
	defer func() {
		telemetry.TaskDuration.WithLabelValues(msg.TaskName).Observe(time.Since(start).Seconds())
	}()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: Errorf(KindTaskError, "executor panic: %v", r)}
			}
		}()
		result, err := executor.Execute(execCtx, msg)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(hardCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrHardTimeLimit, out.err)
		}
		if out.err == nil && out.result == nil {
			out.result = json.RawMessage("null")
		}
		return out.result, out.err

	case <-hardCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrHardTimeLimit
	}
}

// retry переводит запись в RETRY и публикует копию сообщения с задержкой.
func (p *Pool) retry(ctx context.Context, rec *domain.TaskRecord, msg *mq.TaskMessage, execErr error, logger *slog.Logger) (string, error) {
	next := msg.NextRetry()
	delay := Backoff(p.backoffBase, p.backoffMax, msg.RetryCount)

	// Запись сохраняется до публикации: копия может прийти раньше, чем мы вернёмся
	rec.MarkRetry(next.RetryCount)
	if err := p.store.Save(ctx, rec); err != nil {
		return telemetry.OutcomeAbandoned, fmt.Errorf("%w: save retry: %w", ErrUnavailable, err)
	}

	if err := p.broker.PublishDelayed(ctx, next, delay); err != nil {
		// Копия не ушла. Запись возвращается на текущий retry_count,
		// иначе повторная доставка будет отброшена как устаревшая
		rec.State = domain.TaskStateStarted
		rec.RetryCount = msg.RetryCount
		if saveErr := p.store.Save(ctx, rec); saveErr != nil {
			logger.Warn("failed to roll back retry state", "error", saveErr)
		}
		return telemetry.OutcomeAbandoned, fmt.Errorf("%w: publish retry: %w", ErrUnavailable, err)
	}

	telemetry.RetriesTotal.WithLabelValues(msg.TaskName).Inc()
	logger.Warn("task failed, retry scheduled",
		"retry_count", next.RetryCount,
		"delay", delay,
		"error", execErr,
	)

	return telemetry.OutcomeRetry, nil
}

// fail переводит запись в FAILURE с последней ошибкой и отправляет сообщение в DLQ.
func (p *Pool) fail(ctx context.Context, rec *domain.TaskRecord, msg *mq.TaskMessage, cause error, logger *slog.Logger) (string, error) {
	rec.MarkFailed(domain.TaskFailure{
		Message: cause.Error(),
		Type:    ErrorKind(cause),
	})
	if err := p.store.Save(ctx, rec); err != nil {
		return telemetry.OutcomeAbandoned, fmt.Errorf("%w: save failure: %w", ErrUnavailable, err)
	}

	logger.Error("task failed",
		"attempt", rec.Attempts,
		"retry_count", msg.RetryCount,
		"error_type", rec.Error.Type,
		"error", cause,
	)

	// DLQ только для разбора вручную, статус уже записан
	if err := p.broker.PublishDead(ctx, msg, rec.Error.Type+": "+cause.Error()); err != nil {
		logger.Warn("failed to dead-letter message", "error", err)
	}

	return telemetry.OutcomeFailure, nil
}

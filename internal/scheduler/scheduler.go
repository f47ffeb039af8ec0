package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/menustats/internal/analytics"
	"github.com/shaiso/menustats/internal/repo"
)

// Enqueuer ставит task в очередь.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskName string, args ...any) (string, error)
}

// Locker — выбор лидера между экземплярами планировщика.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Scheduler периодически ставит пересчёт статистики для всех
// активных ресторанов.
type Scheduler struct {
	sessions repo.SessionProvider
	enqueuer Enqueuer
	locker   Locker
	logger   *slog.Logger

	cronExpr string
	location *time.Location
	cron     *cron.Cron
}

// Config — конфигурация Scheduler.
type Config struct {
	Sessions repo.SessionProvider
	Enqueuer Enqueuer

	// Locker — опционально; без него экземпляр всегда считает себя лидером.
	Locker Locker

	// CronExpr — когда запускать пересчёт (default: "0 3 * * *").
	CronExpr string

	// Timezone — IANA timezone для CronExpr (default: UTC).
	Timezone string

	Logger *slog.Logger
}

// New создаёт Scheduler.
func New(cfg Config) (*Scheduler, error) {
	cronExpr := cfg.CronExpr
	if cronExpr == "" {
		cronExpr = "0 3 * * *"
	}
	if err := ValidateCronExpr(cronExpr); err != nil {
		return nil, err
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		sessions: cfg.Sessions,
		enqueuer: cfg.Enqueuer,
		locker:   cfg.Locker,
		logger:   logger,
		cronExpr: cronExpr,
		location: loc,
	}, nil
}

// Start запускает cron. Тики идут, пока ctx не отменён.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	_, err := s.cron.AddFunc(s.cronExpr, func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	})
	if err != nil {
		s.cron = nil
		return fmt.Errorf("add cron job %q: %w", s.cronExpr, err)
	}

	s.cron.Start()

	next, _ := NextRun(s.cronExpr, s.location, time.Now())
	s.logger.Info("scheduler started",
		"cron", s.cronExpr,
		"timezone", s.location.String(),
		"next_run", next,
	)
	return nil
}

// Stop останавливает cron и ждёт текущий тик.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	if s.locker != nil {
		if err := s.locker.Unlock(context.Background()); err != nil {
			s.logger.Warn("failed to release scheduler lock", "error", err)
		}
	}

	s.logger.Info("scheduler stopped")
}

// Tick выполняет один тик планировщика.
//
// 1. Проверяет лидерство (если задан Locker)
// 2. Получает список активных ресторанов
// 3. Ставит пересчёт для каждого
//
// Ошибка одного ресторана не блокирует остальные.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.locker != nil {
		leader, err := s.locker.TryLock(ctx)
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
		if !leader {
			s.logger.Debug("not a leader, skipping tick")
			return nil
		}
	}

	ids, err := s.restaurantIDs(ctx)
	if err != nil {
		return err
	}

	var enqueued, failed int
	for _, id := range ids {
		taskID, err := s.enqueuer.Enqueue(ctx, analytics.TaskRecomputeRestaurantStats, id)
		if err != nil {
			s.logger.Error("failed to enqueue recompute",
				"restaurant_id", id,
				"error", err,
			)
			failed++
			continue
		}

		s.logger.Debug("recompute enqueued", "restaurant_id", id, "task_id", taskID)
		enqueued++
	}

	s.logger.Info("scheduler tick completed",
		"restaurants", len(ids),
		"enqueued", enqueued,
		"failed", failed,
	)

	return nil
}

// restaurantIDs берёт сессию только на время запроса.
func (s *Scheduler) restaurantIDs(ctx context.Context) ([]int64, error) {
	session, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer session.Release()

	ids, err := session.RestaurantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	return ids, nil
}

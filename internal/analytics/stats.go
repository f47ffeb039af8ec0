// Package analytics содержит executor'ы аналитики меню.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shaiso/menustats/internal/domain"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/repo"
	"github.com/shaiso/menustats/internal/worker"
)

// TaskRecomputeRestaurantStats — имя task пересчёта статистики ресторана.
const TaskRecomputeRestaurantStats = "analytics.recompute_restaurant_stats"

// StatsExecutor пересчитывает среднюю цену и количество позиций меню.
//
// Только читает данные, поэтому повторное выполнение даёт тот же результат.
type StatsExecutor struct {
	sessions repo.SessionProvider
	logger   *slog.Logger
}

// NewStatsExecutor создаёт StatsExecutor.
func NewStatsExecutor(sessions repo.SessionProvider, logger *slog.Logger) *StatsExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsExecutor{sessions: sessions, logger: logger}
}

// Register регистрирует executor'ы аналитики.
func Register(r *worker.Registry, sessions repo.SessionProvider, logger *slog.Logger) {
	r.Register(TaskRecomputeRestaurantStats, NewStatsExecutor(sessions, logger))
}

// ParseRestaurantID проверяет аргументы: ровно одно целое число >= 1.
func ParseRestaurantID(msg *mq.TaskMessage) (int64, error) {
	if len(msg.Args) != 1 {
		return 0, worker.Permanent(fmt.Errorf("%w: expected 1 argument, got %d", mq.ErrBadArgument, len(msg.Args)))
	}

	id, err := msg.ArgInt64(0)
	if err != nil {
		return 0, worker.Permanent(err)
	}
	if id < 1 {
		return 0, worker.Permanent(fmt.Errorf("%w: restaurant_id must be positive, got %d", mq.ErrBadArgument, id))
	}
	return id, nil
}

// Execute считает статистику для restaurant_id из первого аргумента.
func (e *StatsExecutor) Execute(ctx context.Context, msg *mq.TaskMessage) (json.RawMessage, error) {
	restaurantID, err := ParseRestaurantID(msg)
	if err != nil {
		return nil, err
	}

	stats, err := e.compute(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("restaurant stats computed",
		"task_id", msg.ID,
		"restaurant_id", stats.RestaurantID,
		"total_items", stats.TotalItems,
		"avg_price", stats.AvgPrice,
	)

	return json.Marshal(stats)
}

// compute берёт сессию на время попытки и отдаёт её на любом пути выхода.
func (e *StatsExecutor) compute(ctx context.Context, restaurantID int64) (*domain.RestaurantStats, error) {
	session, err := e.sessions.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer session.Release()

	// Soft limit уже сработал, пока ждали соединение
	if worker.SoftLimitExceeded(ctx) {
		return nil, worker.ErrSoftTimeLimit
	}

	totals, err := session.MenuTotals(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("menu totals for restaurant %d: %w", restaurantID, err)
	}

	return &domain.RestaurantStats{
		RestaurantID: restaurantID,
		AvgPrice:     domain.AverageCents(domain.Cents(totals.SumCents), totals.Count),
		TotalItems:   totals.Count,
	}, nil
}

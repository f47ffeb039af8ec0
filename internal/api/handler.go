package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/menustats/internal/domain"
)

// Dispatcher — постановка task и чтение статуса.
type Dispatcher interface {
	Enqueue(ctx context.Context, taskName string, args ...any) (string, error)
	Status(ctx context.Context, taskID string) (*domain.TaskRecord, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Dispatcher Dispatcher
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		dispatcher: cfg.Dispatcher,
		logger:     logger,
	}
}

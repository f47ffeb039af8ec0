// Package dispatch ставит task в очередь и отдаёт их статус.
//
// Dispatcher сначала пишет PENDING в Result Store, потом публикует
// сообщение. Обратный порядок мог бы затереть STARTED, который
// воркер успел записать раньше нас.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/menustats/internal/domain"
	"github.com/shaiso/menustats/internal/mq"
	"github.com/shaiso/menustats/internal/telemetry"
)

// ErrEnqueue — брокер не принял сообщение.
var ErrEnqueue = errors.New("enqueue failed")

// KindEnqueueError — класс ошибки для task, которую не удалось опубликовать.
const KindEnqueueError = "EnqueueError"

// Store — Result Store с точки зрения Dispatcher'а.
type Store interface {
	Get(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	Save(ctx context.Context, rec *domain.TaskRecord) error
}

// Dispatcher — точка постановки task в очередь.
type Dispatcher struct {
	broker mq.Broker
	store  Store
	logger *slog.Logger
}

// Config — конфигурация Dispatcher.
type Config struct {
	Broker mq.Broker
	Store  Store
	Logger *slog.Logger
}

// New создаёт Dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{broker: cfg.Broker, store: cfg.Store, logger: logger}
}

// Enqueue ставит task в очередь и возвращает task_id.
//
// Возвращается, как только брокер принял сообщение. Результат
// выполнения не ждёт.
func (d *Dispatcher) Enqueue(ctx context.Context, taskName string, args ...any) (string, error) {
	msg, err := mq.NewTaskMessage(taskName, args...)
	if err != nil {
		return "", err
	}

	rec := domain.NewPendingRecord(msg.ID, taskName)
	if err := d.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("save pending record: %w", err)
	}

	if err := d.broker.Publish(ctx, msg); err != nil {
		// Иначе task навсегда останется PENDING
		rec.MarkFailed(domain.TaskFailure{Message: err.Error(), Type: KindEnqueueError})
		if saveErr := d.store.Save(context.WithoutCancel(ctx), rec); saveErr != nil {
			d.logger.Warn("failed to mark unpublished task", "task_id", msg.ID, "error", saveErr)
		}
		return "", fmt.Errorf("%w: %w", ErrEnqueue, err)
	}

	telemetry.EnqueuedTotal.WithLabelValues(taskName).Inc()
	d.logger.Info("task enqueued", "task_id", msg.ID, "task_name", taskName)

	return msg.ID, nil
}

// Status возвращает запись task. Неизвестный task_id — PENDING.
func (d *Dispatcher) Status(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	return d.store.Get(ctx, taskID)
}

// StatusView — то, что видит клиент Status Reporter'а.
type StatusView struct {
	TaskID    string          `json:"task_id"`
	State     string          `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorType string          `json:"error_type,omitempty"`
}

// Render собирает StatusView: result только для SUCCESS, error только для FAILURE.
func Render(rec *domain.TaskRecord) StatusView {
	view := StatusView{
		TaskID: rec.TaskID,
		State:  rec.State.String(),
	}

	switch rec.State {
	case domain.TaskStateSuccess:
		view.Result = rec.Result
	case domain.TaskStateFailure:
		if rec.Error != nil {
			view.Error = rec.Error.Message
			view.ErrorType = rec.Error.Type
		}
	}

	return view
}

package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ошибки брокера.
var (
	// ErrNoChannel — нет открытого AMQP канала.
	ErrNoChannel = errors.New("no channel available")

	// ErrBrokerClosed — брокер закрыт.
	ErrBrokerClosed = errors.New("broker closed")

	// ErrUnknownDelivery — delivery уже подтверждён или возвращён в очередь
	// (например, истёк visibility timeout).
	ErrUnknownDelivery = errors.New("unknown delivery")

	// ErrNotConfirmed — брокер не подтвердил приём сообщения.
	ErrNotConfirmed = errors.New("publish not confirmed by broker")

	// ErrBadArgument — аргумент сообщения отсутствует или имеет неверный тип.
	ErrBadArgument = errors.New("bad task argument")
)

// TaskMessage — единица диспетчеризации.
//
// Создаётся Dispatcher'ом, пока в полёте — принадлежит брокеру.
// Worker Pool пересоздаёт сообщение с увеличенным RetryCount при retry.
type TaskMessage struct {
	// ID — task_id, генерируется при постановке в очередь.
	ID string `json:"task_id"`

	// TaskName — какой executor обрабатывает сообщение.
	TaskName string `json:"task_name"`

	// Args — позиционные параметры (JSON).
	Args []json.RawMessage `json:"args"`

	// RetryCount — номер повтора, начиная с 0.
	RetryCount int `json:"retry_count"`

	// EnqueuedAt — время постановки в очередь Dispatcher'ом.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewTaskMessage создаёт сообщение с новым task_id.
func NewTaskMessage(taskName string, args ...any) (*TaskMessage, error) {
	raw := make([]json.RawMessage, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("marshal arg %d: %w", i, err)
		}
		raw[i] = b
	}

	return &TaskMessage{
		ID:         uuid.New().String(),
		TaskName:   taskName,
		Args:       raw,
		RetryCount: 0,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// NextRetry возвращает копию сообщения с RetryCount+1.
// ID, TaskName, Args и EnqueuedAt не меняются.
func (m *TaskMessage) NextRetry() *TaskMessage {
	next := *m
	next.Args = append([]json.RawMessage(nil), m.Args...)
	next.RetryCount = m.RetryCount + 1
	return &next
}

// ArgInt64 возвращает i-й аргумент как целое число.
func (m *TaskMessage) ArgInt64(i int) (int64, error) {
	if i < 0 || i >= len(m.Args) {
		return 0, fmt.Errorf("%w: missing arg %d", ErrBadArgument, i)
	}

	var n json.Number
	if err := json.Unmarshal(m.Args[i], &n); err != nil {
		return 0, fmt.Errorf("%w: arg %d is not a number: %s", ErrBadArgument, i, m.Args[i])
	}

	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: arg %d is not an integer: %s", ErrBadArgument, i, n)
	}
	return v, nil
}

// Encode сериализует сообщение.
func (m *TaskMessage) Encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return body, nil
}

// DecodeTaskMessage парсит тело сообщения.
func DecodeTaskMessage(body []byte) (*TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.ID == "" || msg.TaskName == "" {
		return nil, fmt.Errorf("unmarshal message: missing task_id or task_name")
	}
	return &msg, nil
}

// Delivery — доставленное сообщение с методами ack/nack.
//
// Пока Delivery не подтверждён, сообщение невидимо для других consumer'ов,
// но не удалено из очереди.
type Delivery struct {
	// Message — распарсенное сообщение.
	Message TaskMessage

	// Redelivered — сообщение уже доставлялось и не было подтверждено.
	Redelivered bool

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery собирает Delivery для конкретной реализации брокера.
func NewDelivery(msg TaskMessage, redelivered bool, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{
		Message:     msg,
		Redelivered: redelivered,
		ack:         ack,
		nack:        nack,
	}
}

// Ack подтверждает успешную обработку сообщения.
func (d *Delivery) Ack() error {
	return d.ack()
}

// Nack отклоняет сообщение.
// requeue=true — вернуть в очередь, false — отправить в DLQ.
func (d *Delivery) Nack(requeue bool) error {
	return d.nack(requeue)
}

// Subscription — подписка одного воркера на очередь задач.
// Держит не больше prefetch неподтверждённых сообщений.
type Subscription interface {
	// Next блокируется до появления сообщения или отмены ctx.
	Next(ctx context.Context) (*Delivery, error)

	// Close закрывает подписку. Неподтверждённые сообщения
	// возвращаются в очередь.
	Close() error
}

// Broker — контракт очереди задач.
//
// Доставка at-least-once: сообщение удаляется только после Ack.
type Broker interface {
	// Publish кладёт сообщение в очередь задач. Возвращается после того,
	// как брокер принял сообщение.
	Publish(ctx context.Context, msg *TaskMessage) error

	// PublishDelayed кладёт сообщение в очередь задач через delay.
	PublishDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error

	// PublishDead отправляет сообщение в dead-letter очередь.
	PublishDead(ctx context.Context, msg *TaskMessage, reason string) error

	// Subscribe открывает подписку с ограничением prefetch.
	Subscribe(ctx context.Context, prefetch int) (Subscription, error)
}

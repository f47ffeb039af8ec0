package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// DeadLetter — сообщение, попавшее в DLQ MemoryBroker'а.
type DeadLetter struct {
	Message TaskMessage
	Reason  string
}

// MemoryBroker — Broker внутри процесса.
//
// Повторяет семантику RabbitMQ, на которую опирается Worker Pool:
//   - сообщение невидимо для других, пока не подтверждено
//   - без ack за VisibilityTimeout оно возвращается в очередь
//   - Nack(true) и закрытие подписки возвращают сообщение в начало очереди
//   - prefetch ограничивает число неподтверждённых сообщений подписки
//
// Используется в тестах и для локального запуска в одном процессе.
type MemoryBroker struct {
	visibility time.Duration

	mu       sync.Mutex
	ready    []*memEntry
	inflight map[uint64]*memEntry
	timers   map[*time.Timer]struct{}
	dead     []DeadLetter
	seq      uint64
	closed   bool

	// changed закрывается и пересоздаётся при любом изменении очереди.
	changed chan struct{}
}

type memEntry struct {
	tag         uint64
	body        []byte
	redelivered bool
	sub         *memSubscription
	timer       *time.Timer
}

// NewMemoryBroker создаёт MemoryBroker.
// visibility <= 0 отключает возврат по таймауту.
func NewMemoryBroker(visibility time.Duration) *MemoryBroker {
	return &MemoryBroker{
		visibility: visibility,
		inflight:   make(map[uint64]*memEntry),
		timers:     make(map[*time.Timer]struct{}),
		changed:    make(chan struct{}),
	}
}

// notifyLocked будит всех ожидающих. Вызывается под mu.
func (b *MemoryBroker) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Publish кладёт сообщение в конец очереди.
func (b *MemoryBroker) Publish(ctx context.Context, msg *TaskMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := msg.Encode()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	b.ready = append(b.ready, &memEntry{body: body})
	b.notifyLocked()
	return nil
}

// PublishDelayed кладёт сообщение в очередь через delay.
func (b *MemoryBroker) PublishDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, msg)
	}

	body, err := msg.Encode()
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.timers, timer)
		if b.closed {
			return
		}
		b.ready = append(b.ready, &memEntry{body: body})
		b.notifyLocked()
	})
	b.timers[timer] = struct{}{}

	return nil
}

// PublishDead кладёт сообщение в DLQ.
func (b *MemoryBroker) PublishDead(ctx context.Context, msg *TaskMessage, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	dl := *msg
	dl.Args = append([]json.RawMessage(nil), msg.Args...)
	b.dead = append(b.dead, DeadLetter{Message: dl, Reason: reason})
	return nil
}

// Subscribe открывает подписку.
func (b *MemoryBroker) Subscribe(ctx context.Context, prefetch int) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	return &memSubscription{broker: b, prefetch: prefetch}, nil
}

// DeadLetters возвращает копию DLQ.
func (b *MemoryBroker) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]DeadLetter, len(b.dead))
	copy(out, b.dead)
	return out
}

// Len возвращает количество сообщений: готовых, в полёте и отложенных.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.ready) + len(b.inflight) + len(b.timers)
}

// Close останавливает брокер. Отложенные сообщения теряются.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for t := range b.timers {
		t.Stop()
	}
	b.timers = nil

	for _, e := range b.inflight {
		if e.timer != nil {
			e.timer.Stop()
		}
	}

	b.notifyLocked()
	return nil
}

// requeueLocked возвращает сообщение из полёта в начало очереди.
func (b *MemoryBroker) requeueLocked(e *memEntry) {
	delete(b.inflight, e.tag)
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.sub.inflight--
	e.sub = nil
	e.redelivered = true

	b.ready = append([]*memEntry{e}, b.ready...)
	b.notifyLocked()
}

// settle снимает сообщение с полёта (ack или nack).
func (b *MemoryBroker) settle(tag uint64, requeue, reject bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.inflight[tag]
	if !ok {
		return ErrUnknownDelivery
	}

	if requeue {
		b.requeueLocked(e)
		return nil
	}

	delete(b.inflight, tag)
	if e.timer != nil {
		e.timer.Stop()
	}
	e.sub.inflight--

	if reject {
		if msg, err := DecodeTaskMessage(e.body); err == nil {
			b.dead = append(b.dead, DeadLetter{Message: *msg, Reason: "rejected"})
		}
	}

	b.notifyLocked()
	return nil
}

// memSubscription — подписка на MemoryBroker.
type memSubscription struct {
	broker   *MemoryBroker
	prefetch int
	inflight int
	closed   bool
}

// Next ждёт сообщение, пока подписка держит меньше prefetch сообщений.
func (s *memSubscription) Next(ctx context.Context) (*Delivery, error) {
	b := s.broker

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.mu.Lock()
		if b.closed || s.closed {
			b.mu.Unlock()
			return nil, ErrBrokerClosed
		}

		if len(b.ready) > 0 && s.inflight < s.prefetch {
			e := b.ready[0]
			b.ready = b.ready[1:]

			msg, err := DecodeTaskMessage(e.body)
			if err != nil {
				// Некорректное сообщение — в DLQ
				b.dead = append(b.dead, DeadLetter{Reason: err.Error()})
				b.mu.Unlock()
				continue
			}

			b.seq++
			tag := b.seq
			e.tag = tag
			e.sub = s
			s.inflight++
			b.inflight[tag] = e

			if b.visibility > 0 {
				e.timer = time.AfterFunc(b.visibility, func() {
					b.mu.Lock()
					defer b.mu.Unlock()
					if cur, ok := b.inflight[tag]; ok && !b.closed {
						b.requeueLocked(cur)
					}
				})
			}

			redelivered := e.redelivered
			b.mu.Unlock()

			return NewDelivery(*msg, redelivered,
				func() error { return b.settle(tag, false, false) },
				func(requeue bool) error { return b.settle(tag, requeue, !requeue) },
			), nil
		}

		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		}
	}
}

// Close возвращает неподтверждённые сообщения подписки в очередь.
func (s *memSubscription) Close() error {
	b := s.broker

	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, e := range b.inflight {
		if e.sub == s {
			b.requeueLocked(e)
		}
	}
	return nil
}

package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// rabbitSubscription — подписка одного воркера на очередь.
//
// У каждой подписки свой канал, поэтому Qos(prefetch) ограничивает
// именно этого воркера, а не всё соединение.
type rabbitSubscription struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	prefetch int

	mu         sync.Mutex
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
	closed     bool
}

// setup открывает канал, выставляет prefetch и начинает потребление.
func (s *rabbitSubscription) setup() error {
	ch, err := s.conn.OpenChannel()
	if err != nil {
		return err
	}

	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(s.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (ack вручную после выполнения)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	s.mu.Lock()
	s.channel = ch
	s.deliveries = deliveries
	s.mu.Unlock()

	s.logger.Info("consumer started", "queue", s.queue, "prefetch", s.prefetch)
	return nil
}

// Next возвращает следующее сообщение.
//
// Если канал доставки закрылся (разрыв соединения, истёк consumer timeout),
// ждёт переподключения и подписывается заново. Неподтверждённые
// сообщения RabbitMQ к этому моменту уже вернул в очередь.
func (s *rabbitSubscription) Next(ctx context.Context) (*Delivery, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrBrokerClosed
		}
		deliveries := s.deliveries
		s.mu.Unlock()

		if deliveries == nil {
			if err := s.resubscribe(ctx); err != nil {
				return nil, err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				s.logger.Warn("deliveries channel closed, resubscribing", "queue", s.queue)
				s.mu.Lock()
				s.deliveries = nil
				s.mu.Unlock()
				continue
			}

			msg, err := DecodeTaskMessage(raw.Body)
			if err != nil {
				s.logger.Error("failed to decode message",
					"queue", s.queue,
					"error", err,
					"body", string(raw.Body),
				)
				// Некорректное сообщение — в DLQ
				raw.Nack(false, false)
				continue
			}

			return NewDelivery(*msg, raw.Redelivered,
				func() error { return raw.Ack(false) },
				func(requeue bool) error { return raw.Nack(false, requeue) },
			), nil
		}
	}
}

// resubscribe пытается подписаться заново, при неудаче ждёт reconnect.
func (s *rabbitSubscription) resubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.channel != nil {
		s.channel.Close()
		s.channel = nil
	}
	s.mu.Unlock()

	// Берём канал уведомления до попытки, чтобы не пропустить reconnect
	reconnected := s.conn.Reconnected()

	err := s.setup()
	if err == nil {
		return nil
	}
	s.logger.Warn("failed to setup consume", "queue", s.queue, "error", err)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-reconnected:
		s.logger.Info("reconnected, restarting consumer", "queue", s.queue)
		return nil
	}
}

// Close закрывает канал подписки.
func (s *rabbitSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			return fmt.Errorf("close consumer channel: %w", err)
		}
	}
	return nil
}

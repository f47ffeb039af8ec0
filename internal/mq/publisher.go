package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// headerFailureReason — заголовок с причиной отправки в DLQ.
const headerFailureReason = "x-failure-reason"

// RabbitBroker — реализация Broker поверх RabbitMQ.
type RabbitBroker struct {
	conn   *Connection
	logger *slog.Logger

	// retryQueues — уже объявленные очереди задержки.
	retryQueues sync.Map
}

// NewRabbitBroker создаёт новый RabbitBroker.
func NewRabbitBroker(conn *Connection, logger *slog.Logger) *RabbitBroker {
	if logger == nil {
		logger = slog.Default()
	}

	return &RabbitBroker{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в очередь задач.
func (b *RabbitBroker) Publish(ctx context.Context, msg *TaskMessage) error {
	return b.publish(ctx, ExchangeTasks, RoutingKeyTasks, msg, nil)
}

// PublishDelayed публикует сообщение в очередь задержки menustats.retry.<ms>.
// По истечении TTL RabbitMQ переложит его в menustats.tasks.
func (b *RabbitBroker) PublishDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, msg)
	}

	queue := RetryQueueName(delay)
	if _, ok := b.retryQueues.Load(queue); !ok {
		err := b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
			_, err := declareRetryQueue(ch, delay)
			return err
		})
		if err != nil {
			return err
		}
		b.retryQueues.Store(queue, struct{}{})
	}

	// Default exchange маршрутизирует по имени очереди
	return b.publish(ctx, "", RoutingKey(queue), msg, nil)
}

// PublishDead отправляет сообщение в DLQ с причиной в заголовке.
func (b *RabbitBroker) PublishDead(ctx context.Context, msg *TaskMessage, reason string) error {
	return b.publish(ctx, ExchangeDLQ, RoutingKeyDead, msg, amqp.Table{headerFailureReason: reason})
}

// publish сериализует сообщение и ждёт publisher confirm.
func (b *RabbitBroker) publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *TaskMessage, headers amqp.Table) error {
	body, err := msg.Encode()
	if err != nil {
		return err
	}

	return b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirm, err := ch.PublishWithDeferredConfirmWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Type:         msg.TaskName,
				Timestamp:    msg.EnqueuedAt,
				Headers:      headers,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		if confirm != nil {
			acked, err := confirm.WaitContext(ctx)
			if err != nil {
				return fmt.Errorf("wait confirm %s/%s: %w", exchange, routingKey, err)
			}
			if !acked {
				return fmt.Errorf("%w: %s/%s", ErrNotConfirmed, exchange, routingKey)
			}
		}

		b.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"task_id", msg.ID,
			"task_name", msg.TaskName,
			"retry_count", msg.RetryCount,
		)

		return nil
	})
}

// Subscribe открывает отдельный канал с Qos(prefetch) и начинает
// потребление menustats.tasks с ручным ack.
func (b *RabbitBroker) Subscribe(ctx context.Context, prefetch int) (Subscription, error) {
	if prefetch <= 0 {
		prefetch = 1
	}

	s := &rabbitSubscription{
		conn:     b.conn,
		logger:   b.logger,
		queue:    QueueTasks,
		prefetch: prefetch,
	}

	if err := s.setup(); err != nil {
		return nil, err
	}

	return s, nil
}

package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "menustats.tasks"
	ExchangeDLQ   Exchange = "menustats.dlx"
)

// Queues — имена очередей.
const (
	QueueTasks Queue = "menustats.tasks"
	QueueDead  Queue = "menustats.dead"

	// retryQueuePrefix — префикс очередей задержки: menustats.retry.<ms>.
	retryQueuePrefix = "menustats.retry."
)

// Routing keys.
const (
	RoutingKeyTasks RoutingKey = "tasks"
	RoutingKeyDead  RoutingKey = "dead"
)

// TopologyOptions — параметры объявления очередей.
type TopologyOptions struct {
	// ConsumerTimeout — visibility timeout: сколько consumer может держать
	// сообщение без ack, прежде чем RabbitMQ закроет канал и вернёт
	// сообщение в очередь. 0 — серверное значение по умолчанию.
	ConsumerTimeout time.Duration
}

// SetupTopology объявляет exchanges, очереди и bindings.
func SetupTopology(ctx context.Context, conn *Connection, opts TopologyOptions) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		if err := declareQueues(ch, opts); err != nil {
			return err
		}

		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, name := range []Exchange{ExchangeTasks, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(name), // name
			"direct",     // type
			true,         // durable
			false,        // auto-deleted
			false,        // internal
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	return nil
}

// declareQueues создаёт очередь задач и DLQ.
func declareQueues(ch *amqp.Channel, opts TopologyOptions) error {
	taskArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDead),
	}
	if opts.ConsumerTimeout > 0 {
		taskArgs["x-consumer-timeout"] = opts.ConsumerTimeout.Milliseconds()
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueTasks, taskArgs},
		{QueueDead, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTasks, RoutingKeyTasks, ExchangeTasks},
		{QueueDead, RoutingKeyDead, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// RetryQueueName возвращает имя очереди задержки для delay.
func RetryQueueName(delay time.Duration) Queue {
	return Queue(fmt.Sprintf("%s%d", retryQueuePrefix, delay.Milliseconds()))
}

// declareRetryQueue объявляет очередь задержки.
//
// Сообщения лежат в ней x-message-ttl и потом через dead-letter
// возвращаются в menustats.tasks. Одна очередь на каждую длительность,
// поэтому сообщения с разным delay не блокируют друг друга.
func declareRetryQueue(ch *amqp.Channel, delay time.Duration) (Queue, error) {
	name := RetryQueueName(delay)

	_, err := ch.QueueDeclare(
		string(name),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl":             delay.Milliseconds(),
			"x-dead-letter-exchange":    string(ExchangeTasks),
			"x-dead-letter-routing-key": string(RoutingKeyTasks),
		},
	)
	if err != nil {
		return "", fmt.Errorf("declare retry queue %s: %w", name, err)
	}

	return name, nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  menustats RabbitMQ topology:

    menustats.tasks (direct)
    └── menustats.tasks [routing: tasks]
            Consumer: menustats-worker (prefetch 1, manual ack)
            DLX: menustats.dlx

    (default exchange)
    └── menustats.retry.<ms> [x-message-ttl = backoff]
            DLX: menustats.tasks / tasks

    menustats.dlx (direct)
    └── menustats.dead [routing: dead]
            Manual processing
  `
}

// Package mq предоставляет очередь задач поверх RabbitMQ.
//
// Структура:
//   - message.go    — TaskMessage, Delivery и контракт Broker/Subscription
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings, очереди задержки
//   - publisher.go  — RabbitBroker: публикация с publisher confirms
//   - consumer.go   — подписка воркера: свой канал, Qos(prefetch), ручной ack
//   - memory.go     — MemoryBroker для тестов и запуска в одном процессе
//
// Доставка at-least-once: сообщение подтверждается только после того,
// как executor вернул результат. Падение воркера до ack приводит
// к повторной доставке, а не к потере.
//
// Exchanges:
//   - menustats.tasks — очередь задач
//   - menustats.dlx   — dead letter
package mq

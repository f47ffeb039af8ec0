// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (dispatcher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (recovery, metrics, logging)
//   - response.go          — унифицированные JSON-ответы
//   - dto.go               — Data Transfer Objects
//   - analytics_handler.go — обработчики для /analytics
//
// API ставит пересчёт статистики в очередь и отдаёт статус task.
// Ответ на постановку не ждёт выполнения: клиент опрашивает
// GET /analytics/tasks/{task_id}.
package api

// Package cli реализует инструмент командной строки menustats.
//
// # Обзор
//
// CLI работает через HTTP API и не импортирует внутренние пакеты системы.
// Ставит пересчёт статистики меню и показывает состояние task.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для menustats API. Разбирает DataResponse и ErrorResponse.
// Wait опрашивает статус, пока task не завершится.
//
//	client := cli.NewClient("http://localhost:8080")
//	accepted, err := client.Recompute(ctx, 42)
//
// ## Output
//
// Таблица (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные идут в stdout, сообщения Notice в stderr и только в табличном режиме.
//
// ## Commands
//
//   - recompute RESTAURANT_ID [--wait] [--interval] [--timeout]
//   - status TASK_ID
//
// Команды создаются фабриками, принимающими clientFn и outputFn —
// замыкания для ленивого создания Client и Output после парсинга
// PersistentFlags.
package cli

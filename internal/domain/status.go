package domain

// TaskState — состояние task в Result Store.
//
// Жизненный цикл одной попытки:
//
//	PENDING → STARTED → SUCCESS
//	                  ↘ RETRY → (requeue) → STARTED → ...
//	                  ↘ FAILURE
//
// Неизвестный task_id отображается как PENDING.
type TaskState string

const (
	// TaskStatePending — task принят брокером, но ещё не взят воркером
	// (или task_id неизвестен).
	TaskStatePending TaskState = "PENDING"

	// TaskStateStarted — воркер выполняет попытку.
	TaskStateStarted TaskState = "STARTED"

	// TaskStateRetry — попытка упала, повтор запланирован с backoff.
	TaskStateRetry TaskState = "RETRY"

	// TaskStateSuccess — task завершён, result заполнен.
	TaskStateSuccess TaskState = "SUCCESS"

	// TaskStateFailure — task завершён с ошибкой, error заполнен.
	TaskStateFailure TaskState = "FAILURE"
)

// IsTerminal возвращает true, если состояние финальное.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateSuccess, TaskStateFailure:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskState.
func (s TaskState) String() string {
	return string(s)
}

// ParseTaskState парсит строку в TaskState.
// Неизвестные значения трактуются как PENDING.
func ParseTaskState(s string) TaskState {
	switch s {
	case "STARTED":
		return TaskStateStarted
	case "RETRY":
		return TaskStateRetry
	case "SUCCESS":
		return TaskStateSuccess
	case "FAILURE":
		return TaskStateFailure
	default:
		return TaskStatePending
	}
}

package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrRecordInvariant — нарушен инвариант result/error у TaskRecord.
var ErrRecordInvariant = errors.New("task record invariant violated")

// TaskFailure — причина финальной ошибки task.
type TaskFailure struct {
	// Message — человекочитаемое описание последней ошибки.
	Message string `json:"message"`

	// Type — класс ошибки (TaskError, ValidationError, HardTimeLimitExceeded, ...).
	Type string `json:"type"`
}

// TaskRecord — представление task в Result Store.
//
// Создаётся Dispatcher'ом в PENDING при постановке в очередь,
// дальше меняется только Worker Pool'ом.
// Ровно одно из Result/Error заполнено, и только в соответствующем
// финальном состоянии.
type TaskRecord struct {
	// TaskID — идентификатор task, совпадает с ID сообщения.
	TaskID string `json:"task_id"`

	// TaskName — имя executor'а.
	TaskName string `json:"task_name,omitempty"`

	// State — текущее состояние.
	State TaskState `json:"state"`

	// Result — результат, только для SUCCESS.
	Result json.RawMessage `json:"result,omitempty"`

	// Error — ошибка, только для FAILURE.
	Error *TaskFailure `json:"error,omitempty"`

	// Attempts — сколько раз воркер брал task в работу,
	// включая попытки, прерванные hard time limit.
	Attempts int `json:"attempts"`

	// RetryCount — retry_count сообщения последней попытки.
	RetryCount int `json:"retry_count"`

	// UpdatedAt — время последнего перехода состояния.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPendingRecord создаёт запись в состоянии PENDING.
func NewPendingRecord(taskID, taskName string) *TaskRecord {
	return &TaskRecord{
		TaskID:    taskID,
		TaskName:  taskName,
		State:     TaskStatePending,
		UpdatedAt: time.Now().UTC(),
	}
}

// IsFinished возвращает true, если task в финальном состоянии.
func (r *TaskRecord) IsFinished() bool {
	return r.State.IsTerminal()
}

// MarkStarted переводит запись в STARTED и увеличивает Attempts.
func (r *TaskRecord) MarkStarted(retryCount int) {
	r.State = TaskStateStarted
	r.RetryCount = retryCount
	r.Attempts++
	r.Result = nil
	r.Error = nil
	r.UpdatedAt = time.Now().UTC()
}

// MarkRetry переводит запись в RETRY.
// Ошибка промежуточной попытки не сохраняется.
func (r *TaskRecord) MarkRetry(nextRetryCount int) {
	r.State = TaskStateRetry
	r.RetryCount = nextRetryCount
	r.Result = nil
	r.Error = nil
	r.UpdatedAt = time.Now().UTC()
}

// MarkSucceeded переводит запись в SUCCESS с результатом.
func (r *TaskRecord) MarkSucceeded(result json.RawMessage) {
	r.State = TaskStateSuccess
	r.Result = result
	r.Error = nil
	r.UpdatedAt = time.Now().UTC()
}

// MarkFailed переводит запись в FAILURE с последней ошибкой.
func (r *TaskRecord) MarkFailed(failure TaskFailure) {
	r.State = TaskStateFailure
	r.Result = nil
	r.Error = &failure
	r.UpdatedAt = time.Now().UTC()
}

// Validate проверяет инвариант result/error.
func (r *TaskRecord) Validate() error {
	switch r.State {
	case TaskStateSuccess:
		if r.Result == nil || r.Error != nil {
			return ErrRecordInvariant
		}
	case TaskStateFailure:
		if r.Error == nil || r.Result != nil {
			return ErrRecordInvariant
		}
	default:
		if r.Result != nil || r.Error != nil {
			return ErrRecordInvariant
		}
	}
	return nil
}

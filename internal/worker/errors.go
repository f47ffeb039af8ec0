package worker

import (
	"errors"
	"fmt"
)

// Ошибки воркера.
var (
	// ErrUnknownTask — нет executor'а для task_name.
	ErrUnknownTask = errors.New("unknown task")

	// ErrSoftTimeLimit — executor свернул работу по soft time limit.
	ErrSoftTimeLimit = errors.New("soft time limit exceeded")

	// ErrHardTimeLimit — попытка прервана по hard time limit.
	ErrHardTimeLimit = errors.New("hard time limit exceeded")

	// ErrUnavailable — Result Store или брокер не ответили, доставка
	// возвращается в очередь с паузой.
	ErrUnavailable = errors.New("infrastructure unavailable")
)

// Классы ошибок, которые видит клиент в error.type.
const (
	KindTaskError     = "TaskError"
	KindValidation    = "ValidationError"
	KindUnknownTask   = "UnknownTask"
	KindSoftTimeLimit = "SoftTimeLimitExceeded"
	KindHardTimeLimit = "HardTimeLimitExceeded"
)

// TaskError — ошибка выполнения task с классом.
//
// Permanent-ошибки не расходуют бюджет retry: task сразу уходит в FAILURE.
type TaskError struct {
	Kind      string
	Err       error
	permanent bool
}

func (e *TaskError) Error() string {
	return e.Err.Error()
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// Permanent помечает ошибку валидации: повтор ничего не изменит.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &TaskError{Kind: KindValidation, Err: err, permanent: true}
}

// Errorf создаёт повторяемую ошибку с заданным классом.
func Errorf(kind, format string, args ...any) error {
	return &TaskError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsPermanent проверяет, помечена ли ошибка как permanent.
func IsPermanent(err error) bool {
	var te *TaskError
	return errors.As(err, &te) && te.permanent
}

// ErrorKind возвращает класс ошибки.
func ErrorKind(err error) string {
	var te *TaskError
	switch {
	case errors.As(err, &te):
		return te.Kind
	case errors.Is(err, ErrSoftTimeLimit):
		return KindSoftTimeLimit
	case errors.Is(err, ErrHardTimeLimit):
		return KindHardTimeLimit
	case errors.Is(err, ErrUnknownTask):
		return KindUnknownTask
	default:
		return KindTaskError
	}
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/menustats/internal/mq"
)

// Executor выполняет task одного вида.
//
// Возвращённый результат сохраняется в Result Store как есть.
// ctx отменяется по hard time limit, soft limit доступен через SoftLimit(ctx).
// Executor должен быть идемпотентным: сообщение может прийти повторно.
type Executor interface {
	Execute(ctx context.Context, msg *mq.TaskMessage) (json.RawMessage, error)
}

// ExecutorFunc — адаптер функции к Executor.
type ExecutorFunc func(ctx context.Context, msg *mq.TaskMessage) (json.RawMessage, error)

// Execute вызывает f(ctx, msg).
func (f ExecutorFunc) Execute(ctx context.Context, msg *mq.TaskMessage) (json.RawMessage, error) {
	return f(ctx, msg)
}

// Registry — реестр executor'ов по task_name.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register добавляет executor для task_name.
func (r *Registry) Register(taskName string, executor Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[taskName] = executor
}

// Get возвращает executor для task_name.
func (r *Registry) Get(taskName string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executor, ok := r.executors[taskName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskName)
	}
	return executor, nil
}

// Names возвращает зарегистрированные task_name по алфавиту.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.executors))
	for name := range r.executors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

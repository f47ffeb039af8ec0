package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTaskState_IsTerminal(t *testing.T) {
	terminal := []TaskState{TaskStateSuccess, TaskStateFailure}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	nonTerminal := []TaskState{TaskStatePending, TaskStateStarted, TaskStateRetry}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestParseTaskState(t *testing.T) {
	for _, s := range []TaskState{TaskStatePending, TaskStateStarted, TaskStateRetry, TaskStateSuccess, TaskStateFailure} {
		if got := ParseTaskState(s.String()); got != s {
			t.Errorf("ParseTaskState(%q) = %s", s, got)
		}
	}
	if got := ParseTaskState("garbage"); got != TaskStatePending {
		t.Errorf("unknown state should parse as PENDING, got %s", got)
	}
}

func TestTaskRecord_Lifecycle(t *testing.T) {
	rec := NewPendingRecord("task-1", "analytics.recompute_restaurant_stats")
	if rec.State != TaskStatePending {
		t.Fatalf("expected PENDING, got %s", rec.State)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("pending record should be valid: %v", err)
	}

	rec.MarkStarted(0)
	if rec.State != TaskStateStarted || rec.Attempts != 1 {
		t.Fatalf("expected STARTED with 1 attempt, got %s/%d", rec.State, rec.Attempts)
	}

	rec.MarkRetry(1)
	if rec.State != TaskStateRetry || rec.RetryCount != 1 {
		t.Fatalf("expected RETRY with retry_count 1, got %s/%d", rec.State, rec.RetryCount)
	}

	rec.MarkStarted(1)
	if rec.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", rec.Attempts)
	}

	rec.MarkSucceeded(json.RawMessage(`{"ok":true}`))
	if !rec.IsFinished() {
		t.Error("SUCCESS should be finished")
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("succeeded record should be valid: %v", err)
	}
}

func TestTaskRecord_MarkFailedClearsResult(t *testing.T) {
	rec := NewPendingRecord("task-1", "x")
	rec.MarkSucceeded(json.RawMessage(`1`))
	rec.MarkFailed(TaskFailure{Message: "boom", Type: "TaskError"})

	if rec.Result != nil {
		t.Error("result should be cleared on FAILURE")
	}
	if rec.Error == nil || rec.Error.Message != "boom" {
		t.Errorf("expected error boom, got %+v", rec.Error)
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("failed record should be valid: %v", err)
	}
}

func TestTaskRecord_Validate(t *testing.T) {
	tests := []struct {
		name string
		rec  TaskRecord
		ok   bool
	}{
		{"success without result", TaskRecord{State: TaskStateSuccess}, false},
		{"failure without error", TaskRecord{State: TaskStateFailure}, false},
		{"started with result", TaskRecord{State: TaskStateStarted, Result: json.RawMessage(`1`)}, false},
		{"retry with error", TaskRecord{State: TaskStateRetry, Error: &TaskFailure{Message: "x"}}, false},
		{"success with both", TaskRecord{State: TaskStateSuccess, Result: json.RawMessage(`1`), Error: &TaskFailure{}}, false},
		{"plain pending", TaskRecord{State: TaskStatePending}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrRecordInvariant) {
				t.Errorf("expected ErrRecordInvariant, got %v", err)
			}
		})
	}
}

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned before any backend call when a
	// mutation needs an author and the store has no actor.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrTaskNotFound is returned when a task isn't in the loaded state.
	ErrTaskNotFound = errors.New("task not found")

	// ErrSubtaskNotFound is returned by ToggleSubtask for an unknown subtask.
	ErrSubtaskNotFound = errors.New("subtask not found")

	// ErrEmptyComment is returned by AddComment for blank content.
	ErrEmptyComment = errors.New("comment content is empty")

	// ErrInvalidInput wraps validation failures of task input.
	ErrInvalidInput = errors.New("invalid input")
)

// PartialWriteError reports a multi-step mutation that failed after its
// first write committed. Nothing is rolled back: the task row exists and a
// later fetch will show exactly what was stored.
type PartialWriteError struct {
	TaskID string
	Step   string
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("task %s was written but %s failed: %v", e.TaskID, e.Step, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

package repomanager

import (
	"errors"
	"fmt"
)

// UnavailableError indicates a transport-level failure talking to the
// repository manager. It aborts the current phase; pre-barrier work can be
// retried from scratch by re-invoking the operation.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("repository manager unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// TaskFailedError indicates an asynchronous task polled to a failed terminal
// state.
type TaskFailedError struct {
	TaskHref string
	Details  string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("repository task %s failed: %s", e.TaskHref, e.Details)
}

// IsUnavailable reports whether err is a transport-level failure.
func IsUnavailable(err error) bool {
	var e *UnavailableError
	return errors.As(err, &e)
}

// IsTaskFailed reports whether err is a failed asynchronous task.
func IsTaskFailed(err error) bool {
	var e *TaskFailedError
	return errors.As(err, &e)
}

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
)

// DefaultTaskFailedMessage is used when a failed task doesn't carry an error message.
const DefaultTaskFailedMessage = "Validation task failed"

// TaskCreationError is returned when the task service rejects a task creation.
type TaskCreationError struct {
	ValidationType ValidationType
	Err            error
}

func (e *TaskCreationError) Error() string {
	return fmt.Sprintf("could not create %s task: %s", e.ValidationType, e.Err)
}

func (e *TaskCreationError) Unwrap() error { return e.Err }

// PollingTransportError is returned when a task status poll fails.
type PollingTransportError struct {
	TaskID int64
	Err    error
}

func (e *PollingTransportError) Error() string {
	return fmt.Sprintf("could not poll task %d: %s", e.TaskID, e.Err)
}

func (e *PollingTransportError) Unwrap() error { return e.Err }

// TaskFailedError is returned when a task reaches the failed status.
// The message is the one set by the task service, so it can be shown to users as is.
type TaskFailedError struct {
	TaskID  int64
	Message string
}

func (e *TaskFailedError) Error() string { return e.Message }

// NewTaskFailedError returns a TaskFailedError using the default message when msg is empty.
func NewTaskFailedError(taskID int64, msg string) *TaskFailedError {
	if msg == "" {
		msg = DefaultTaskFailedMessage
	}
	return &TaskFailedError{TaskID: taskID, Message: msg}
}

// UnexpectedStatusError is returned when polling ends with a status that is not completed or failed.
type UnexpectedStatusError struct {
	TaskID int64
	Status TaskStatus
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("task %d ended with unexpected status %q", e.TaskID, e.Status)
}

// ResultFetchError is returned when the results of a completed task can't be retrieved.
type ResultFetchError struct {
	TaskID int64
	Err    error
}

func (e *ResultFetchError) Error() string {
	return fmt.Sprintf("could not fetch results of task %d: %s", e.TaskID, e.Err)
}

func (e *ResultFetchError) Unwrap() error { return e.Err }

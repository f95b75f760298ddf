package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValidationType is the kind of data-quality check a task runs.
type ValidationType string

const (
	ValidationTypeTestTakers         ValidationType = "testTakers"
	ValidationTypeVariables          ValidationType = "variables"
	ValidationTypeVariableTypes      ValidationType = "variableTypes"
	ValidationTypeResponseStatus     ValidationType = "responseStatus"
	ValidationTypeDuplicateResponses ValidationType = "duplicateResponses"
	ValidationTypeGroupResponses     ValidationType = "groupResponses"

	// Remediation types, these are one-shot tasks and never part of a batch.
	ValidationTypeDeleteResponses    ValidationType = "deleteResponses"
	ValidationTypeDeleteAllResponses ValidationType = "deleteAllResponses"
)

// BatchOrder is the fixed order a batch runs its validations in.
var BatchOrder = []ValidationType{
	ValidationTypeTestTakers,
	ValidationTypeVariables,
	ValidationTypeVariableTypes,
	ValidationTypeResponseStatus,
	ValidationTypeDuplicateResponses,
	ValidationTypeGroupResponses,
}

// IsRemediation returns true for the administrative cleanup task types.
func (v ValidationType) IsRemediation() bool {
	return v == ValidationTypeDeleteResponses || v == ValidationTypeDeleteAllResponses
}

// Validate validates the validation type is a known one.
func (v ValidationType) Validate() error {
	switch v {
	case ValidationTypeTestTakers,
		ValidationTypeVariables,
		ValidationTypeVariableTypes,
		ValidationTypeResponseStatus,
		ValidationTypeDuplicateResponses,
		ValidationTypeGroupResponses,
		ValidationTypeDeleteResponses,
		ValidationTypeDeleteAllResponses:
		return nil
	}

	return fmt.Errorf("unknown validation type %q: %w", v, ErrNotValid)
}

// TaskStatus is the status of a remote validation task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal returns true when the task will not change its status anymore.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task is a validation task owned by the task service.
type Task struct {
	ID             int64
	WorkspaceID    int64
	ValidationType ValidationType
	Status         TaskStatus
	// Progress is a 0-100 percentage, nil when the service doesn't report it.
	Progress  *int
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RawResult is the detailed result payload of a completed task. The payload
// shape depends on the validation type.
type RawResult = json.RawMessage

// ResultStatus is the evaluated verdict of a validation.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailed  ResultStatus = "failed"
	ResultStatusNotRun  ResultStatus = "not-run"
)

// ValidationResult is the last evaluated result of a validation type for a workspace.
type ValidationResult struct {
	Status    ResultStatus
	Timestamp time.Time
	Details   RawResult
}

// TaskOptions are the optional parameters used when creating a task.
type TaskOptions struct {
	Page  *int
	Limit *int
	// AdditionalData is forwarded to the task service as is.
	AdditionalData map[string]any
}

// BatchStatus is the status of a workspace batch run.
type BatchStatus string

const (
	BatchStatusIdle      BatchStatus = "idle"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// BatchState is the state of the batch run of a workspace.
type BatchState struct {
	Status BatchStatus
	// RunID identifies the batch run that set this state.
	RunID string
	// CurrentStep is the validation being processed while running.
	CurrentStep ValidationType
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Error       string
}

// CanStart returns true when a new batch can transition into running.
func (b BatchState) CanStart() bool {
	return b.Status != BatchStatusRunning
}

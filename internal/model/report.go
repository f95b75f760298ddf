package model

import "time"

// ValidationReport is the state of a single validation type on a workspace.
type ValidationReport struct {
	ValidationType ValidationType
	Status         ResultStatus
	Running        bool
	// TaskID is the active task, only set while running.
	TaskID    int64
	Timestamp *time.Time
	Details   RawResult
}

// WorkspaceReport is the validation state of a workspace.
type WorkspaceReport struct {
	WorkspaceID int64
	Batch       BatchState
	// Validations are sorted in batch order.
	Validations []ValidationReport
}

package lib

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/slok/valtask/internal/model"
)

// TaskServiceType identifies the validation task service implementation.
type TaskServiceType string

const (
	// TaskServiceHTTP uses the validation task REST API.
	TaskServiceHTTP TaskServiceType = "http"
	// TaskServiceFake uses an in-process scripted task service, for testing.
	TaskServiceFake TaskServiceType = "fake"
)

// ValidationType identifies a validation or remediation task.
type ValidationType string

const (
	ValidationTestTakers         ValidationType = "testTakers"
	ValidationVariables          ValidationType = "variables"
	ValidationVariableTypes      ValidationType = "variableTypes"
	ValidationResponseStatus     ValidationType = "responseStatus"
	ValidationDuplicateResponses ValidationType = "duplicateResponses"
	ValidationGroupResponses     ValidationType = "groupResponses"
)

// BatchValidations returns the validations a batch runs, in order.
func BatchValidations() []ValidationType {
	vts := make([]ValidationType, 0, len(model.BatchOrder))
	for _, vt := range model.BatchOrder {
		vts = append(vts, ValidationType(vt))
	}
	return vts
}

// ResultStatus is the evaluated outcome of a validation.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
	ResultNotRun  ResultStatus = "not-run"
)

// BatchStatus is the status of the batch of a workspace.
//
// The lifecycle is:
//
//	idle -> running -> completed|failed -> running -> ...
type BatchStatus string

const (
	BatchIdle      BatchStatus = "idle"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// ValidationResult is the evaluated result of the last successful run of a validation.
type ValidationResult struct {
	Status    ResultStatus
	Timestamp time.Time
	// Details is the raw task results payload.
	Details json.RawMessage
}

// BatchState is the state of the batch of a workspace.
type BatchState struct {
	Status      BatchStatus
	RunID       string
	CurrentStep ValidationType
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Error       string
}

// ValidationReport is the state of one validation of a workspace.
type ValidationReport struct {
	Type      ValidationType
	Status    ResultStatus
	Running   bool
	TaskID    int64
	Timestamp *time.Time
	Details   json.RawMessage
}

// WorkspaceReport is the validation state of a workspace.
type WorkspaceReport struct {
	WorkspaceID int64
	Batch       BatchState
	Validations []ValidationReport
}

// TaskOptions are the optional parameters sent when creating a validation task.
type TaskOptions struct {
	Page  int
	Limit int
	// Data is sent as query parameters, slices are comma joined.
	Data map[string]any
}

// BatchOpts are the options of a batch run.
type BatchOpts struct {
	// Force runs the validations that already have a result.
	Force bool
}

var (
	// ErrNotFound is returned when a resource doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrNotValid is returned when input validation fails.
	ErrNotValid = errors.New("not valid")
	// ErrAlreadyRunning is returned when the workspace already has a batch running.
	ErrAlreadyRunning = errors.New("batch already running")
	// ErrTaskCreation is returned when the task service rejects a task.
	ErrTaskCreation = errors.New("task creation failed")
	// ErrTaskFailed is returned when a task ends as failed.
	ErrTaskFailed = errors.New("task failed")
	// ErrTaskService is returned when the task service can't be reached while
	// polling or fetching results.
	ErrTaskService = errors.New("task service error")
)

func toInternalTaskOptions(opts *TaskOptions) model.TaskOptions {
	if opts == nil {
		return model.TaskOptions{}
	}

	o := model.TaskOptions{AdditionalData: opts.Data}
	if opts.Page > 0 {
		p := opts.Page
		o.Page = &p
	}
	if opts.Limit > 0 {
		l := opts.Limit
		o.Limit = &l
	}
	return o
}

func fromInternalResult(r model.ValidationResult) ValidationResult {
	return ValidationResult{
		Status:    ResultStatus(r.Status),
		Timestamp: r.Timestamp,
		Details:   json.RawMessage(r.Details),
	}
}

func fromInternalResults(rs map[model.ValidationType]model.ValidationResult) map[ValidationType]ValidationResult {
	res := make(map[ValidationType]ValidationResult, len(rs))
	for vt, r := range rs {
		res[ValidationType(vt)] = fromInternalResult(r)
	}
	return res
}

func fromInternalTaskIDs(ids map[model.ValidationType]int64) map[ValidationType]int64 {
	res := make(map[ValidationType]int64, len(ids))
	for vt, id := range ids {
		res[ValidationType(vt)] = id
	}
	return res
}

func fromInternalBatchState(b model.BatchState) BatchState {
	return BatchState{
		Status:      BatchStatus(b.Status),
		RunID:       b.RunID,
		CurrentStep: ValidationType(b.CurrentStep),
		StartedAt:   b.StartedAt,
		FinishedAt:  b.FinishedAt,
		Error:       b.Error,
	}
}

func fromInternalReport(r model.WorkspaceReport) WorkspaceReport {
	report := WorkspaceReport{
		WorkspaceID: r.WorkspaceID,
		Batch:       fromInternalBatchState(r.Batch),
		Validations: make([]ValidationReport, 0, len(r.Validations)),
	}
	for _, v := range r.Validations {
		report.Validations = append(report.Validations, ValidationReport{
			Type:      ValidationType(v.ValidationType),
			Status:    ResultStatus(v.Status),
			Running:   v.Running,
			TaskID:    v.TaskID,
			Timestamp: v.Timestamp,
			Details:   json.RawMessage(v.Details),
		})
	}
	return report
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	var (
		creationErr  *model.TaskCreationError
		failedErr    *model.TaskFailedError
		transportErr *model.PollingTransportError
		fetchErr     *model.ResultFetchError
	)

	switch {
	case errors.As(err, &creationErr):
		return joinErrors(err, ErrTaskCreation)
	case errors.As(err, &failedErr):
		return joinErrors(err, ErrTaskFailed)
	case errors.As(err, &transportErr), errors.As(err, &fetchErr):
		return joinErrors(err, ErrTaskService)
	case errors.Is(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case errors.Is(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	default:
		return err
	}
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }

package status

import (
	"context"
	"fmt"

	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
)

// StateStore is the task state the status is read from.
type StateStore interface {
	GetBatchState(workspaceID int64) model.BatchState
	GetAllValidationResults(workspaceID int64) map[model.ValidationType]model.ValidationResult
	GetAllTaskIDs(workspaceID int64) map[model.ValidationType]int64
}

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	StateStore StateStore
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.StateStore == nil {
		return fmt.Errorf("state store is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service builds the validation report of workspaces.
type Service struct {
	store  StateStore
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		store:  cfg.StateStore,
		logger: cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	WorkspaceID int64
	// WithDetails includes the raw results on the report.
	WithDetails bool
}

// Run returns the report of a workspace. Validations without result are reported as not run.
func (s *Service) Run(ctx context.Context, req Request) (*model.WorkspaceReport, error) {
	s.logger.Debugf("getting status for workspace: %d", req.WorkspaceID)

	results := s.store.GetAllValidationResults(req.WorkspaceID)
	taskIDs := s.store.GetAllTaskIDs(req.WorkspaceID)

	report := &model.WorkspaceReport{
		WorkspaceID: req.WorkspaceID,
		Batch:       s.store.GetBatchState(req.WorkspaceID),
		Validations: make([]model.ValidationReport, 0, len(model.BatchOrder)),
	}

	for _, vt := range model.BatchOrder {
		vr := model.ValidationReport{
			ValidationType: vt,
			Status:         model.ResultStatusNotRun,
		}

		if res, ok := results[vt]; ok {
			ts := res.Timestamp
			vr.Status = res.Status
			vr.Timestamp = &ts
			if req.WithDetails {
				vr.Details = res.Details
			}
		}

		if id, ok := taskIDs[vt]; ok {
			vr.Running = true
			vr.TaskID = id
		}

		report.Validations = append(report.Validations, vr)
	}

	return report, nil
}

package step

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/valtask/internal/evaluate"
	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/poll"
	"github.com/slok/valtask/internal/taskservice"
)

// StateStore is the task state the runner writes to.
type StateStore interface {
	SetTaskID(workspaceID int64, vt model.ValidationType, taskID int64)
	RemoveTaskID(workspaceID int64, vt model.ValidationType, taskID int64)
	SetValidationResult(workspaceID int64, vt model.ValidationType, r model.ValidationResult)
}

// TaskPoller knows how to watch a task until it finishes.
type TaskPoller interface {
	Poll(ctx context.Context, workspaceID, taskID int64, interval time.Duration) <-chan poll.Event
}

// ServiceConfig is the configuration for the step service.
type ServiceConfig struct {
	TaskService taskservice.Service
	StateStore  StateStore
	// Poller is optional, by default polls the task service.
	Poller  TaskPoller
	Logger  log.Logger
	TimeNow func() time.Time
}

func (c *ServiceConfig) defaults() error {
	if c.TaskService == nil {
		return fmt.Errorf("task service is required")
	}

	if c.StateStore == nil {
		return fmt.Errorf("state store is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Step"})

	if c.Poller == nil {
		p, err := poll.NewPoller(poll.PollerConfig{TaskGetter: c.TaskService, Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create poller: %w", err)
		}
		c.Poller = p
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Service runs a single validation task: create, poll, fetch and evaluate.
type Service struct {
	tasks   taskservice.Service
	store   StateStore
	poller  TaskPoller
	logger  log.Logger
	timeNow func() time.Time
}

// NewService creates a new step service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		tasks:   cfg.TaskService,
		store:   cfg.StateStore,
		poller:  cfg.Poller,
		logger:  cfg.Logger,
		timeNow: cfg.TimeNow,
	}, nil
}

// Request represents the step request parameters.
type Request struct {
	WorkspaceID    int64
	ValidationType model.ValidationType
	Options        model.TaskOptions
	// PollInterval defaults to poll.DefaultInterval.
	PollInterval time.Duration
}

func (r Request) validate() error {
	if err := r.ValidationType.Validate(); err != nil {
		return err
	}
	if r.ValidationType.IsRemediation() {
		return fmt.Errorf("%s is a remediation task: %w", r.ValidationType, model.ErrNotValid)
	}
	return nil
}

// Run runs a validation and stores its evaluated result.
//
// A failed task doesn't change the stored result of the validation. Errors are
// the typed errors of the model package.
func (s *Service) Run(ctx context.Context, req Request) (*model.ValidationResult, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	var result model.ValidationResult
	create := func(ctx context.Context) (*model.Task, error) {
		return s.tasks.CreateTask(ctx, req.WorkspaceID, req.ValidationType, req.Options)
	}
	onCompleted := func(raw model.RawResult) {
		result = model.ValidationResult{
			Status:    evaluate.Evaluate(req.ValidationType, raw),
			Timestamp: s.timeNow().UTC(),
			Details:   raw,
		}
		s.store.SetValidationResult(req.WorkspaceID, req.ValidationType, result)
	}

	if err := s.execute(ctx, req.WorkspaceID, req.ValidationType, req.PollInterval, create, onCompleted); err != nil {
		return nil, err
	}

	return &result, nil
}

// RunDeleteResponses runs a remediation task that deletes the given responses.
func (s *Service) RunDeleteResponses(ctx context.Context, workspaceID int64, responseIDs []int64, interval time.Duration) (model.RawResult, error) {
	if len(responseIDs) == 0 {
		return nil, fmt.Errorf("at least one response is required: %w", model.ErrNotValid)
	}

	var res model.RawResult
	create := func(ctx context.Context) (*model.Task, error) {
		return s.tasks.CreateDeleteResponsesTask(ctx, workspaceID, responseIDs)
	}
	err := s.execute(ctx, workspaceID, model.ValidationTypeDeleteResponses, interval, create, func(raw model.RawResult) { res = raw })
	if err != nil {
		return nil, err
	}

	return res, nil
}

// RunDeleteAllResponses runs a remediation task that deletes every response
// flagged by a validation type.
func (s *Service) RunDeleteAllResponses(ctx context.Context, workspaceID int64, vt model.ValidationType, interval time.Duration) (model.RawResult, error) {
	if err := vt.Validate(); err != nil || vt.IsRemediation() {
		return nil, fmt.Errorf("invalid validation type %q: %w", vt, model.ErrNotValid)
	}

	var res model.RawResult
	create := func(ctx context.Context) (*model.Task, error) {
		return s.tasks.CreateDeleteAllResponsesTask(ctx, workspaceID, vt)
	}
	err := s.execute(ctx, workspaceID, model.ValidationTypeDeleteAllResponses, interval, create, func(raw model.RawResult) { res = raw })
	if err != nil {
		return nil, err
	}

	return res, nil
}

// execute runs the create, poll and fetch protocol. The active task stays
// registered until onCompleted returns or the error is known.
func (s *Service) execute(
	ctx context.Context,
	workspaceID int64,
	vt model.ValidationType,
	interval time.Duration,
	create func(ctx context.Context) (*model.Task, error),
	onCompleted func(raw model.RawResult),
) error {
	logger := s.logger.WithValues(log.Kv{"workspace": workspaceID, "validation": vt})

	task, err := create(ctx)
	if err != nil {
		return &model.TaskCreationError{ValidationType: vt, Err: err}
	}
	if task == nil {
		return &model.TaskCreationError{ValidationType: vt, Err: fmt.Errorf("empty task response: %w", model.ErrNotFound)}
	}

	s.store.SetTaskID(workspaceID, vt, task.ID)
	defer s.store.RemoveTaskID(workspaceID, vt, task.ID)
	logger.Debugf("Task %d created", task.ID)

	var last *model.Task
	for ev := range s.poller.Poll(ctx, workspaceID, task.ID, interval) {
		if ev.Err != nil {
			return ev.Err
		}
		last = ev.Task
		if last.Progress != nil {
			logger.Debugf("Task %d %s (%d%%)", task.ID, last.Status, *last.Progress)
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("task %d polling stopped: %w", task.ID, ctx.Err())
	}

	if last == nil {
		return &model.UnexpectedStatusError{TaskID: task.ID}
	}

	switch last.Status {
	case model.TaskStatusFailed:
		tErr := model.NewTaskFailedError(task.ID, last.Error)
		logger.Warningf("Task %d failed: %s", task.ID, tErr.Message)
		return tErr

	case model.TaskStatusCompleted:
		raw, err := s.tasks.GetTaskResults(ctx, workspaceID, task.ID)
		if err != nil {
			return &model.ResultFetchError{TaskID: task.ID, Err: err}
		}
		onCompleted(raw)
		logger.Infof("Task %d completed", task.ID)
		return nil
	}

	return &model.UnexpectedStatusError{TaskID: task.ID, Status: last.Status}
}

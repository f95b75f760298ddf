// Package fake is an in-process task service that resolves tasks following a scenario.
package fake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/taskservice"
)

var passingResults = map[model.ValidationType]any{
	model.ValidationTypeTestTakers:         map[string]any{"testTakersFound": true, "totalGroups": 1, "totalLogins": 1, "totalBookletCodes": 1, "missingPersons": []any{}},
	model.ValidationTypeVariables:          map[string]any{"total": 0, "data": []any{}},
	model.ValidationTypeVariableTypes:      map[string]any{"total": 0, "data": []any{}},
	model.ValidationTypeResponseStatus:     map[string]any{"total": 0, "data": []any{}},
	model.ValidationTypeDuplicateResponses: map[string]any{"total": 0, "data": []any{}},
	model.ValidationTypeGroupResponses:     map[string]any{"testTakersFound": true, "allGroupsHaveResponses": true, "groupsWithResponses": []any{}},
}

// ServiceConfig is the configuration for the fake task service.
type ServiceConfig struct {
	Scenario Scenario
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if err := c.Scenario.validate(); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	if c.Scenario.Polls == 0 {
		c.Scenario.Polls = 1
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "taskservice.Fake"})
	return nil
}

type fakeTask struct {
	task    model.Task
	polls   int
	outcome Outcome
	data    map[string]string
}

// Service is a fake implementation of taskservice.Service.
type Service struct {
	scenario Scenario
	tasks    map[int64]*fakeTask
	lastID   int64
	mu       sync.Mutex
	logger   log.Logger
}

var _ taskservice.Service = &Service{}

// NewService creates a new fake task service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		scenario: cfg.Scenario,
		tasks:    map[int64]*fakeTask{},
		logger:   cfg.Logger,
	}, nil
}

// CreateTask creates a task resolved by the scenario of its validation type.
func (s *Service) CreateTask(ctx context.Context, workspaceID int64, vt model.ValidationType, opts model.TaskOptions) (*model.Task, error) {
	return s.create(workspaceID, vt, taskservice.FlattenAdditionalData(opts.AdditionalData))
}

// CreateDeleteResponsesTask creates a response deletion task.
func (s *Service) CreateDeleteResponsesTask(ctx context.Context, workspaceID int64, responseIDs []int64) (*model.Task, error) {
	data := taskservice.FlattenAdditionalData(map[string]any{"responseIds": responseIDs})
	return s.create(workspaceID, model.ValidationTypeDeleteResponses, data)
}

// CreateDeleteAllResponsesTask creates a task deleting all the responses flagged by a validation.
func (s *Service) CreateDeleteAllResponsesTask(ctx context.Context, workspaceID int64, vt model.ValidationType) (*model.Task, error) {
	data := map[string]string{"validationType": string(vt)}
	return s.create(workspaceID, model.ValidationTypeDeleteAllResponses, data)
}

func (s *Service) create(workspaceID int64, vt model.ValidationType, data map[string]string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := s.scenario.Validations[vt]
	if outcome.CreateError != "" {
		return nil, errors.New(outcome.CreateError)
	}
	if outcome.Polls == 0 {
		outcome.Polls = s.scenario.Polls
	}

	s.lastID++
	now := time.Now().UTC()
	t := &fakeTask{
		task: model.Task{
			ID:             s.lastID,
			WorkspaceID:    workspaceID,
			ValidationType: vt,
			Status:         model.TaskStatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		outcome: outcome,
		data:    data,
	}
	s.tasks[t.task.ID] = t
	s.logger.Debugf("Created %s task %d on workspace %d", vt, t.task.ID, workspaceID)

	tc := t.task
	return &tc, nil
}

// GetTask advances the task one poll and returns its state.
func (s *Service) GetTask(ctx context.Context, workspaceID, taskID int64) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(workspaceID, taskID)
	if err != nil {
		return nil, err
	}

	if !t.task.Status.IsTerminal() {
		t.polls++
		progress := min(100, t.polls*100/t.outcome.Polls)
		t.task.Progress = &progress
		t.task.UpdatedAt = time.Now().UTC()

		switch {
		case t.polls < t.outcome.Polls:
			t.task.Status = model.TaskStatusProcessing
		case t.outcome.Error != "" || t.outcome.Failed:
			t.task.Status = model.TaskStatusFailed
			t.task.Error = t.outcome.Error
		default:
			t.task.Status = model.TaskStatusCompleted
		}
	}

	tc := t.task
	return &tc, nil
}

// GetTaskResults returns the results of a completed task.
func (s *Service) GetTaskResults(ctx context.Context, workspaceID, taskID int64) (model.RawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.get(workspaceID, taskID)
	if err != nil {
		return nil, err
	}
	if t.task.Status != model.TaskStatusCompleted {
		return nil, fmt.Errorf("task %d is %s: %w", taskID, t.task.Status, model.ErrNotValid)
	}

	result := t.outcome.Result
	if result == nil {
		result = s.defaultResult(t)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("could not marshal result: %w", err)
	}

	return model.RawResult(data), nil
}

func (s *Service) defaultResult(t *fakeTask) any {
	switch t.task.ValidationType {
	case model.ValidationTypeDeleteResponses, model.ValidationTypeDeleteAllResponses:
		return map[string]any{"success": true, "details": t.data}
	}
	if r, ok := passingResults[t.task.ValidationType]; ok {
		return r
	}
	return map[string]any{}
}

func (s *Service) get(workspaceID, taskID int64) (*fakeTask, error) {
	t, ok := s.tasks[taskID]
	if !ok || t.task.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("task %d on workspace %d: %w", taskID, workspaceID, model.ErrNotFound)
	}
	return t, nil
}

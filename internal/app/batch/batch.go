package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/valtask/internal/app/step"
	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/poll"
)

// StepRunner runs a single validation.
type StepRunner interface {
	Run(ctx context.Context, req step.Request) (*model.ValidationResult, error)
}

// StateStore is the task state the orchestrator reads and writes.
type StateStore interface {
	TryStartBatch(workspaceID int64, runID string, now time.Time) (model.BatchState, bool)
	GetBatchState(workspaceID int64) model.BatchState
	SetBatchState(workspaceID int64, st model.BatchState)
	GetAllValidationResults(workspaceID int64) map[model.ValidationType]model.ValidationResult
	IsRunning(workspaceID int64, vt model.ValidationType) bool
	TouchBatch(workspaceID int64, now time.Time)
}

// BatchClaimer claims the batch of a workspace across processes sharing the
// same persisted state.
type BatchClaimer interface {
	ClaimBatch(ctx context.Context, workspaceID int64) error
}

// BatchClaimerFunc is a helper to use functions as BatchClaimer.
type BatchClaimerFunc func(ctx context.Context, workspaceID int64) error

func (b BatchClaimerFunc) ClaimBatch(ctx context.Context, workspaceID int64) error {
	return b(ctx, workspaceID)
}

// DefaultHeartbeatInterval is how often a running batch is marked alive.
const DefaultHeartbeatInterval = 10 * time.Second

// ServiceConfig is the configuration for the batch service.
type ServiceConfig struct {
	StepRunner StepRunner
	StateStore StateStore
	Logger     log.Logger
	TimeNow    func() time.Time
	// RunIDGen generates batch run IDs, ULIDs by default.
	RunIDGen func() string
	// Claimer is optional, when set a started batch only runs after claiming it.
	Claimer BatchClaimer
	// HeartbeatInterval defaults to DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration
}

func (c *ServiceConfig) defaults() error {
	if c.StepRunner == nil {
		return fmt.Errorf("step runner is required")
	}

	if c.StateStore == nil {
		return fmt.Errorf("state store is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Batch"})

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	if c.RunIDGen == nil {
		c.RunIDGen = func() string { return ulid.Make().String() }
	}

	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}

	return nil
}

// Service runs the validation batch of workspaces, at most one at a time per workspace.
type Service struct {
	steps    StepRunner
	store    StateStore
	logger   log.Logger
	timeNow  func() time.Time
	runIDGen func() string
	claimer  BatchClaimer
	hbEvery  time.Duration

	mu      sync.Mutex
	running map[int64]chan struct{}
}

// NewService creates a new batch service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		steps:    cfg.StepRunner,
		store:    cfg.StateStore,
		logger:   cfg.Logger,
		timeNow:  cfg.TimeNow,
		runIDGen: cfg.RunIDGen,
		claimer:  cfg.Claimer,
		hbEvery:  cfg.HeartbeatInterval,
		running:  map[int64]chan struct{}{},
	}, nil
}

// Request represents the batch request parameters.
type Request struct {
	WorkspaceID int64
	// Force runs validations that already have a result.
	Force bool
	// PollInterval defaults to poll.DefaultInterval.
	PollInterval time.Duration
}

// Start starts the validation batch of a workspace in the background.
//
// If the workspace already has a batch running, here or in another process
// holding the claim, nothing is started and false is returned. Otherwise the returned channel is closed when the batch ends.
// The outcome is only reported through the batch state of the store. The
// batch stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context, req Request) (done <-chan struct{}, started bool) {
	logger := s.logger.WithValues(log.Kv{"workspace": req.WorkspaceID})

	s.mu.Lock()
	if _, ok := s.running[req.WorkspaceID]; ok {
		s.mu.Unlock()
		logger.Debugf("Batch already tracked, ignoring start")
		return nil, false
	}

	prev := s.store.GetBatchState(req.WorkspaceID)
	runID := s.runIDGen()
	st, ok := s.store.TryStartBatch(req.WorkspaceID, runID, s.timeNow().UTC())
	if !ok {
		s.mu.Unlock()
		logger.Debugf("Batch %s already running, ignoring start", st.RunID)
		return nil, false
	}

	if s.claimer != nil {
		if err := s.claimer.ClaimBatch(ctx, req.WorkspaceID); err != nil {
			s.store.SetBatchState(req.WorkspaceID, prev)
			s.mu.Unlock()
			logger.Warningf("Could not claim batch, ignoring start: %s", err)
			return nil, false
		}
	}

	doneC := make(chan struct{})
	s.running[req.WorkspaceID] = doneC
	s.mu.Unlock()

	logger = logger.WithValues(log.Kv{"run": runID})
	logger.Infof("Batch started")

	go func() {
		defer s.release(req.WorkspaceID)

		hbCtx, hbCancel := context.WithCancel(ctx)
		defer hbCancel()
		go s.heartbeat(hbCtx, req.WorkspaceID)

		s.run(ctx, req, st, logger)
	}()

	return doneC, true
}

// IsRunning returns true when this service is running the batch of a workspace.
func (s *Service) IsRunning(workspaceID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.running[workspaceID]
	return ok
}

func (s *Service) release(workspaceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if done, ok := s.running[workspaceID]; ok {
		delete(s.running, workspaceID)
		close(done)
	}
}

// heartbeat marks the running batch as alive until ctx is done.
func (s *Service) heartbeat(ctx context.Context, workspaceID int64) {
	t := time.NewTicker(s.hbEvery)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.store.TouchBatch(workspaceID, s.timeNow().UTC())
		}
	}
}

func (s *Service) run(ctx context.Context, req Request, st model.BatchState, logger log.Logger) {
	interval := req.PollInterval
	if interval <= 0 {
		interval = poll.DefaultInterval
	}

	for _, vt := range model.BatchOrder {
		if s.shouldSkip(req, vt) {
			logger.Debugf("Skipping %s, already validated", vt)
			continue
		}

		st.CurrentStep = vt
		s.store.SetBatchState(req.WorkspaceID, st)

		_, err := s.steps.Run(ctx, step.Request{
			WorkspaceID:    req.WorkspaceID,
			ValidationType: vt,
			PollInterval:   interval,
		})
		if err != nil {
			finishedAt := s.timeNow().UTC()
			st.Status = model.BatchStatusFailed
			st.CurrentStep = ""
			st.FinishedAt = &finishedAt
			st.Error = err.Error()
			s.store.SetBatchState(req.WorkspaceID, st)
			logger.Errorf("Batch failed on %s: %s", vt, err)
			return
		}
	}

	finishedAt := s.timeNow().UTC()
	st.Status = model.BatchStatusCompleted
	st.CurrentStep = ""
	st.FinishedAt = &finishedAt
	s.store.SetBatchState(req.WorkspaceID, st)
	logger.Infof("Batch completed")
}

func (s *Service) shouldSkip(req Request, vt model.ValidationType) bool {
	if req.Force {
		return false
	}
	if _, ok := s.store.GetAllValidationResults(req.WorkspaceID)[vt]; !ok {
		return false
	}
	return !s.store.IsRunning(req.WorkspaceID, vt)
}

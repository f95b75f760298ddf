// Package state keeps the in-memory state of validation tasks per workspace.
//
// All reads return copies, every mutation notifies the workspace observers with
// the full current snapshot. Mutations of a workspace are serialized with a
// workspace lock, so check-then-act sequences like TryStartBatch are atomic.
package state

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
)

// InterruptedBatchMessage is set as the error of a restored batch that was running.
const InterruptedBatchMessage = "Batch was interrupted before finishing"

// DefaultBatchStaleAfter is how long a running batch is considered alive after
// its last heartbeat.
const DefaultBatchStaleAfter = 30 * time.Second

// WorkspaceSnapshot is the restorable state of a workspace. Active tasks are not
// part of it, they only make sense for the process that started them.
type WorkspaceSnapshot struct {
	WorkspaceID int64
	Results     map[model.ValidationType]model.ValidationResult
	Batch       model.BatchState
	// HeartbeatAt is the last time the process running the batch reported it
	// was alive, nil when nothing ever ran it.
	HeartbeatAt *time.Time
}

type workspace struct {
	mu sync.Mutex
	// taskIDs is the registry view, the latest active task of each type.
	taskIDs map[model.ValidationType]int64
	// active has every task of a type still running, in registration order.
	active  map[model.ValidationType][]int64
	results map[model.ValidationType]model.ValidationResult
	batch   model.BatchState
	// heartbeatAt is the last liveness mark of the batch, zero if none.
	heartbeatAt time.Time

	taskIDWatchers watchers[map[model.ValidationType]int64]
	resultWatchers watchers[map[model.ValidationType]model.ValidationResult]
	batchWatchers  watchers[model.BatchState]
}

func newWorkspace() *workspace {
	return &workspace{
		taskIDs: map[model.ValidationType]int64{},
		active:  map[model.ValidationType][]int64{},
		results: map[model.ValidationType]model.ValidationResult{},
		batch:   model.BatchState{Status: model.BatchStatusIdle},
	}
}

// StoreConfig is the configuration for the store.
type StoreConfig struct {
	Logger log.Logger
	// StaleAfter is the heartbeat age after which a restored running batch is
	// considered dead. Default: [DefaultBatchStaleAfter].
	StaleAfter time.Duration
	TimeNow    func() time.Time
}

func (c *StoreConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "state.Store"})

	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultBatchStaleAfter
	}

	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}

	return nil
}

// Store is the task state store shared by the whole process.
type Store struct {
	mu         sync.RWMutex
	workspaces map[int64]*workspace
	logger     log.Logger
	staleAfter time.Duration
	timeNow    func() time.Time
}

// NewStore returns a new empty store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Store{
		workspaces: map[int64]*workspace{},
		logger:     cfg.Logger,
		staleAfter: cfg.StaleAfter,
		timeNow:    cfg.TimeNow,
	}, nil
}

func (s *Store) workspace(id int64) *workspace {
	s.mu.RLock()
	ws, ok := s.workspaces[id]
	s.mu.RUnlock()
	if ok {
		return ws
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok = s.workspaces[id]
	if !ok {
		ws = newWorkspace()
		s.workspaces[id] = ws
	}
	return ws
}

// Workspaces returns the IDs of the workspaces with state, sorted.
func (s *Store) Workspaces() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.workspaces))
}

// SetTaskID registers an active task of a validation type. The registry shows
// the latest registered task of each type.
func (s *Store) SetTaskID(workspaceID int64, vt model.ValidationType, taskID int64) {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !slices.Contains(ws.active[vt], taskID) {
		ws.active[vt] = append(ws.active[vt], taskID)
	}
	ws.taskIDs[vt] = taskID
	ws.taskIDWatchers.notify(maps.Clone(ws.taskIDs))
	s.logger.Debugf("Workspace %d %s task %d registered", workspaceID, vt, taskID)
}

// RemoveTaskID unregisters an active task of a validation type. The type stays
// registered while other tasks of the same type are still active.
func (s *Store) RemoveTaskID(workspaceID int64, vt model.ValidationType, taskID int64) {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ids := ws.active[vt]
	i := slices.Index(ids, taskID)
	if i < 0 {
		return
	}
	ids = slices.Delete(ids, i, i+1)

	if len(ids) == 0 {
		delete(ws.active, vt)
		delete(ws.taskIDs, vt)
	} else {
		ws.active[vt] = ids
		ws.taskIDs[vt] = ids[len(ids)-1]
	}
	ws.taskIDWatchers.notify(maps.Clone(ws.taskIDs))
	s.logger.Debugf("Workspace %d %s task %d unregistered", workspaceID, vt, taskID)
}

// GetAllTaskIDs returns the active tasks of a workspace.
func (s *Store) GetAllTaskIDs(workspaceID int64) map[model.ValidationType]int64 {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return maps.Clone(ws.taskIDs)
}

// IsRunning returns true when a validation type has an active task.
func (s *Store) IsRunning(workspaceID int64, vt model.ValidationType) bool {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	_, ok := ws.taskIDs[vt]
	return ok
}

// SetValidationResult overwrites the result of a validation type.
func (s *Store) SetValidationResult(workspaceID int64, vt model.ValidationType, r model.ValidationResult) {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.results[vt] = r
	ws.resultWatchers.notify(maps.Clone(ws.results))
}

// GetAllValidationResults returns the validation results of a workspace.
func (s *Store) GetAllValidationResults(workspaceID int64) map[model.ValidationType]model.ValidationResult {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return maps.Clone(ws.results)
}

// SetBatchState sets the batch state of a workspace.
func (s *Store) SetBatchState(workspaceID int64, st model.BatchState) {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.batch = st
	ws.heartbeatAt = s.timeNow().UTC()
	ws.batchWatchers.notify(st)
}

// TouchBatch marks the running batch of a workspace as alive. Observers are
// notified with the unchanged batch state, so they can persist the heartbeat.
func (s *Store) TouchBatch(workspaceID int64, now time.Time) {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.batch.Status != model.BatchStatusRunning {
		return
	}
	ws.heartbeatAt = now
	ws.batchWatchers.notify(ws.batch)
}

// GetBatchState returns the batch state of a workspace, idle if it never ran.
func (s *Store) GetBatchState(workspaceID int64) model.BatchState {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	return ws.batch
}

// TryStartBatch atomically moves the workspace batch into running. It returns
// false without changing anything when a batch is already running.
func (s *Store) TryStartBatch(workspaceID int64, runID string, now time.Time) (model.BatchState, bool) {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !ws.batch.CanStart() {
		return ws.batch, false
	}

	ws.batch = model.BatchState{
		Status:    model.BatchStatusRunning,
		RunID:     runID,
		StartedAt: &now,
	}
	ws.heartbeatAt = now
	ws.batchWatchers.notify(ws.batch)

	return ws.batch, true
}

// ObserveTaskIDs returns the active tasks of a workspace, now and on every change,
// until the context is done.
func (s *Store) ObserveTaskIDs(ctx context.Context, workspaceID int64) <-chan map[model.ValidationType]int64 {
	ws := s.workspace(workspaceID)
	return subscribe(ctx, ws, &ws.taskIDWatchers, func() map[model.ValidationType]int64 { return maps.Clone(ws.taskIDs) })
}

// ObserveValidationResults returns the validation results of a workspace, now and on
// every change, until the context is done.
func (s *Store) ObserveValidationResults(ctx context.Context, workspaceID int64) <-chan map[model.ValidationType]model.ValidationResult {
	ws := s.workspace(workspaceID)
	return subscribe(ctx, ws, &ws.resultWatchers, func() map[model.ValidationType]model.ValidationResult { return maps.Clone(ws.results) })
}

// ObserveBatchState returns the batch state of a workspace, now and on every change,
// until the context is done.
func (s *Store) ObserveBatchState(ctx context.Context, workspaceID int64) <-chan model.BatchState {
	ws := s.workspace(workspaceID)
	return subscribe(ctx, ws, &ws.batchWatchers, func() model.BatchState { return ws.batch })
}

// Snapshot returns the restorable state of a workspace.
func (s *Store) Snapshot(workspaceID int64) WorkspaceSnapshot {
	ws := s.workspace(workspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	snap := WorkspaceSnapshot{
		WorkspaceID: workspaceID,
		Results:     maps.Clone(ws.results),
		Batch:       ws.batch,
	}
	if !ws.heartbeatAt.IsZero() {
		hb := ws.heartbeatAt
		snap.HeartbeatAt = &hb
	}

	return snap
}

// Restore replaces the results and batch state of a workspace with a snapshot.
//
// A running batch whose heartbeat is recent belongs to another live process and
// is restored as running, so it can't be started again here. Otherwise the
// running batch is restored as failed.
func (s *Store) Restore(snap WorkspaceSnapshot) {
	ws := s.workspace(snap.WorkspaceID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	batch := snap.Batch
	if batch.Status == "" {
		batch.Status = model.BatchStatusIdle
	}
	ws.heartbeatAt = time.Time{}
	if snap.HeartbeatAt != nil {
		ws.heartbeatAt = *snap.HeartbeatAt
	}
	if batch.Status == model.BatchStatusRunning && !s.isAlive(ws.heartbeatAt) {
		batch.Status = model.BatchStatusFailed
		batch.CurrentStep = ""
		batch.Error = InterruptedBatchMessage
	}

	ws.results = maps.Clone(snap.Results)
	if ws.results == nil {
		ws.results = map[model.ValidationType]model.ValidationResult{}
	}
	ws.batch = batch

	ws.resultWatchers.notify(maps.Clone(ws.results))
	ws.batchWatchers.notify(ws.batch)
	s.logger.Debugf("Workspace %d state restored with %d results", snap.WorkspaceID, len(ws.results))
}

func (s *Store) isAlive(heartbeatAt time.Time) bool {
	if heartbeatAt.IsZero() {
		return false
	}
	return s.timeNow().Sub(heartbeatAt) < s.staleAfter
}

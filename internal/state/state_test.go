package state_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/state"
)

func newStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.NewStore(state.StoreConfig{})
	require.NoError(t, err)
	return s
}

func TestStoreDefaults(t *testing.T) {
	assert := assert.New(t)
	s := newStore(t)

	assert.Empty(s.GetAllTaskIDs(42))
	assert.NotNil(s.GetAllTaskIDs(42))
	assert.Empty(s.GetAllValidationResults(42))
	assert.Equal(model.BatchState{Status: model.BatchStatusIdle}, s.GetBatchState(42))
	assert.False(s.IsRunning(42, model.ValidationTypeVariables))
}

func TestStoreTaskIDs(t *testing.T) {
	assert := assert.New(t)
	s := newStore(t)

	s.SetTaskID(1, model.ValidationTypeVariables, 10)
	s.SetTaskID(1, model.ValidationTypeTestTakers, 11)
	s.SetTaskID(2, model.ValidationTypeVariables, 20)

	assert.Equal(map[model.ValidationType]int64{"variables": 10, "testTakers": 11}, s.GetAllTaskIDs(1))
	assert.True(s.IsRunning(1, model.ValidationTypeTestTakers))

	s.RemoveTaskID(1, model.ValidationTypeVariables, 10)
	s.RemoveTaskID(1, model.ValidationTypeGroupResponses, 10)
	assert.Equal(map[model.ValidationType]int64{"testTakers": 11}, s.GetAllTaskIDs(1))
	assert.Equal(map[model.ValidationType]int64{"variables": 20}, s.GetAllTaskIDs(2))

	// Returned maps are copies.
	got := s.GetAllTaskIDs(1)
	got["variables"] = 99
	assert.False(s.IsRunning(1, model.ValidationTypeVariables))
}

func TestStoreOverlappingTasksOfSameType(t *testing.T) {
	tests := map[string]struct {
		removeOrder []int64
		expAfter    []map[model.ValidationType]int64
	}{
		"Finishing the newest task should keep the older one registered.": {
			removeOrder: []int64{20, 10},
			expAfter: []map[model.ValidationType]int64{
				{"variables": 10},
				{},
			},
		},
		"Finishing the oldest task should keep the newest one registered.": {
			removeOrder: []int64{10, 20},
			expAfter: []map[model.ValidationType]int64{
				{"variables": 20},
				{},
			},
		},
		"Removing an unknown task should not change the registry.": {
			removeOrder: []int64{30, 20, 10},
			expAfter: []map[model.ValidationType]int64{
				{"variables": 20},
				{"variables": 10},
				{},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			s := newStore(t)

			s.SetTaskID(1, model.ValidationTypeVariables, 10)
			s.SetTaskID(1, model.ValidationTypeVariables, 20)
			assert.Equal(map[model.ValidationType]int64{"variables": 20}, s.GetAllTaskIDs(1))

			for i, id := range test.removeOrder {
				s.RemoveTaskID(1, model.ValidationTypeVariables, id)
				assert.Equal(test.expAfter[i], s.GetAllTaskIDs(1))
				assert.Equal(len(test.expAfter[i]) > 0, s.IsRunning(1, model.ValidationTypeVariables))
			}
		})
	}
}

func TestStoreValidationResults(t *testing.T) {
	s := newStore(t)
	ts := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)

	s.SetValidationResult(1, model.ValidationTypeVariables, model.ValidationResult{Status: model.ResultStatusFailed, Timestamp: ts})
	s.SetValidationResult(1, model.ValidationTypeVariables, model.ValidationResult{Status: model.ResultStatusSuccess, Timestamp: ts, Details: model.RawResult(`{"total":0}`)})

	exp := map[model.ValidationType]model.ValidationResult{
		"variables": {Status: model.ResultStatusSuccess, Timestamp: ts, Details: model.RawResult(`{"total":0}`)},
	}
	assert.Equal(t, exp, s.GetAllValidationResults(1))
	assert.Empty(t, s.GetAllValidationResults(2))
}

func TestStoreTryStartBatch(t *testing.T) {
	assert := assert.New(t)
	s := newStore(t)
	now := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)

	st, ok := s.TryStartBatch(1, "run-1", now)
	assert.True(ok)
	assert.Equal(model.BatchStatusRunning, st.Status)
	assert.Equal("run-1", st.RunID)
	assert.Equal(now, *st.StartedAt)

	st, ok = s.TryStartBatch(1, "run-2", now.Add(time.Second))
	assert.False(ok)
	assert.Equal("run-1", st.RunID)

	// Other workspaces are independent.
	_, ok = s.TryStartBatch(2, "run-3", now)
	assert.True(ok)

	s.SetBatchState(1, model.BatchState{Status: model.BatchStatusFailed, Error: "boom"})
	_, ok = s.TryStartBatch(1, "run-4", now)
	assert.True(ok)
}

func TestStoreTryStartBatchConcurrent(t *testing.T) {
	s := newStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.TryStartBatch(1, "run", time.Now()); ok {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
}

func TestStoreRestoredLiveBatchCantStart(t *testing.T) {
	assert := assert.New(t)
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	hb := now.Add(-time.Second)
	s, err := state.NewStore(state.StoreConfig{TimeNow: func() time.Time { return now }})
	require.NoError(t, err)

	s.Restore(state.WorkspaceSnapshot{
		WorkspaceID: 1,
		Batch:       model.BatchState{Status: model.BatchStatusRunning, RunID: "other"},
		HeartbeatAt: &hb,
	})

	st, ok := s.TryStartBatch(1, "mine", now)
	assert.False(ok)
	assert.Equal("other", st.RunID)

	// Heartbeats only apply to running batches.
	s.TouchBatch(2, now)
	assert.Nil(s.Snapshot(2).HeartbeatAt)
	s.TouchBatch(1, now)
	assert.Equal(now, *s.Snapshot(1).HeartbeatAt)
}

func TestStoreObserveBatchState(t *testing.T) {
	assert := assert.New(t)
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.ObserveBatchState(ctx, 1)
	assert.Equal(model.BatchStatusIdle, (<-ch).Status)

	_, _ = s.TryStartBatch(1, "run", time.Now())
	s.SetBatchState(1, model.BatchState{Status: model.BatchStatusCompleted})
	assert.Equal(model.BatchStatusRunning, (<-ch).Status)
	assert.Equal(model.BatchStatusCompleted, (<-ch).Status)

	// Other workspaces don't notify.
	s.SetBatchState(2, model.BatchState{Status: model.BatchStatusFailed})
	select {
	case st := <-ch:
		t.Fatalf("unexpected notification: %v", st)
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	for range ch {
	}
}

func TestStoreObserveSnapshots(t *testing.T) {
	assert := assert.New(t)
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.SetTaskID(1, model.ValidationTypeVariables, 3)

	taskCh := s.ObserveTaskIDs(ctx, 1)
	resultCh := s.ObserveValidationResults(ctx, 1)
	assert.Equal(map[model.ValidationType]int64{"variables": 3}, <-taskCh)
	assert.Empty(<-resultCh)

	s.SetTaskID(1, model.ValidationTypeTestTakers, 4)
	s.SetValidationResult(1, model.ValidationTypeVariables, model.ValidationResult{Status: model.ResultStatusSuccess})
	s.RemoveTaskID(1, model.ValidationTypeVariables, 3)

	assert.Equal(map[model.ValidationType]int64{"variables": 3, "testTakers": 4}, <-taskCh)
	assert.Equal(map[model.ValidationType]int64{"testTakers": 4}, <-taskCh)
	assert.Equal(map[model.ValidationType]model.ValidationResult{"variables": {Status: model.ResultStatusSuccess}}, <-resultCh)
}

func TestStoreObserveSlowConsumerGetsLatest(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.ObserveTaskIDs(ctx, 1)
	for i := range int64(100) {
		s.SetTaskID(1, model.ValidationTypeVariables, i)
	}

	var last map[model.ValidationType]int64
	for len(ch) > 0 {
		last = <-ch
	}
	assert.Equal(t, map[model.ValidationType]int64{"variables": 99}, last)
}

func TestStoreSnapshotRestore(t *testing.T) {
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)
	freshHeartbeat := now.Add(-5 * time.Second)
	staleHeartbeat := now.Add(-state.DefaultBatchStaleAfter)

	tests := map[string]struct {
		snap     state.WorkspaceSnapshot
		expBatch model.BatchState
	}{
		"Completed batches should be restored as is.": {
			snap: state.WorkspaceSnapshot{
				WorkspaceID: 5,
				Results:     map[model.ValidationType]model.ValidationResult{"variables": {Status: model.ResultStatusSuccess}},
				Batch:       model.BatchState{Status: model.BatchStatusCompleted, RunID: "r"},
			},
			expBatch: model.BatchState{Status: model.BatchStatusCompleted, RunID: "r"},
		},
		"Running batches should be restored as failed.": {
			snap: state.WorkspaceSnapshot{
				WorkspaceID: 5,
				Batch:       model.BatchState{Status: model.BatchStatusRunning, RunID: "r", CurrentStep: model.ValidationTypeVariables},
			},
			expBatch: model.BatchState{Status: model.BatchStatusFailed, RunID: "r", Error: state.InterruptedBatchMessage},
		},
		"Running batches with a recent heartbeat should be restored as running.": {
			snap: state.WorkspaceSnapshot{
				WorkspaceID: 5,
				Batch:       model.BatchState{Status: model.BatchStatusRunning, RunID: "r"},
				HeartbeatAt: &freshHeartbeat,
			},
			expBatch: model.BatchState{Status: model.BatchStatusRunning, RunID: "r"},
		},
		"Running batches with a stale heartbeat should be restored as failed.": {
			snap: state.WorkspaceSnapshot{
				WorkspaceID: 5,
				Batch:       model.BatchState{Status: model.BatchStatusRunning, RunID: "r"},
				HeartbeatAt: &staleHeartbeat,
			},
			expBatch: model.BatchState{Status: model.BatchStatusFailed, RunID: "r", Error: state.InterruptedBatchMessage},
		},
		"Empty batch status should be restored as idle.": {
			snap:     state.WorkspaceSnapshot{WorkspaceID: 5},
			expBatch: model.BatchState{Status: model.BatchStatusIdle},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			s, err := state.NewStore(state.StoreConfig{TimeNow: func() time.Time { return now }})
			require.NoError(t, err)
			s.SetTaskID(5, model.ValidationTypeTestTakers, 1)

			s.Restore(test.snap)

			assert.Equal(test.expBatch, s.GetBatchState(5))
			assert.Equal(len(test.snap.Results), len(s.GetAllValidationResults(5)))
			assert.True(s.IsRunning(5, model.ValidationTypeTestTakers))

			snap := s.Snapshot(5)
			assert.Equal(int64(5), snap.WorkspaceID)
			assert.Equal(test.expBatch, snap.Batch)
			assert.Equal(test.snap.HeartbeatAt, snap.HeartbeatAt)
			assert.Equal([]int64{5}, s.Workspaces())
		})
	}
}

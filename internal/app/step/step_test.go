package step_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/valtask/internal/app/step"
	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/poll"
	"github.com/slok/valtask/internal/state"
	"github.com/slok/valtask/internal/taskservice/taskservicemock"
)

var fixedNow = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

type pollerFunc func(ctx context.Context, workspaceID, taskID int64, interval time.Duration) <-chan poll.Event

func (p pollerFunc) Poll(ctx context.Context, workspaceID, taskID int64, interval time.Duration) <-chan poll.Event {
	return p(ctx, workspaceID, taskID, interval)
}

func TestNewService(t *testing.T) {
	store, _ := state.NewStore(state.StoreConfig{})

	tests := map[string]struct {
		config step.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: step.ServiceConfig{
				TaskService: &taskservicemock.MockService{},
				StateStore:  store,
				Logger:      log.Noop,
			},
		},
		"missing task service should fail": {
			config: step.ServiceConfig{StateStore: store},
			expErr: true,
		},
		"missing state store should fail": {
			config: step.ServiceConfig{TaskService: &taskservicemock.MockService{}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			svc, err := step.NewService(test.config)
			if test.expErr {
				require.Error(err)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestServiceRun(t *testing.T) {
	previous := model.ValidationResult{Status: model.ResultStatusSuccess, Timestamp: fixedNow.Add(-time.Hour)}

	tests := map[string]struct {
		req       step.Request
		mock      func(m *taskservicemock.MockService)
		expResult *model.ValidationResult
		expStored model.ValidationResult
		expErr    func(t *testing.T, err error)
	}{
		"A completed task with invalid items should store a failed result.": {
			req: step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables},
			mock: func(m *taskservicemock.MockService) {
				m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 5, Status: model.TaskStatusPending}, nil)
				m.On("GetTask", mock.Anything, int64(1), int64(5)).Once().Return(&model.Task{ID: 5, Status: model.TaskStatusProcessing}, nil)
				m.On("GetTask", mock.Anything, int64(1), int64(5)).Once().Return(&model.Task{ID: 5, Status: model.TaskStatusCompleted}, nil)
				m.On("GetTaskResults", mock.Anything, int64(1), int64(5)).Once().Return(model.RawResult(`{"total":2}`), nil)
			},
			expResult: &model.ValidationResult{Status: model.ResultStatusFailed, Timestamp: fixedNow, Details: model.RawResult(`{"total":2}`)},
			expStored: model.ValidationResult{Status: model.ResultStatusFailed, Timestamp: fixedNow, Details: model.RawResult(`{"total":2}`)},
		},
		"Task options should be forwarded to the task creation.": {
			req: step.Request{
				WorkspaceID:    1,
				ValidationType: model.ValidationTypeDuplicateResponses,
				Options:        model.TaskOptions{AdditionalData: map[string]any{"unitIds": []int64{1, 2}}},
			},
			mock: func(m *taskservicemock.MockService) {
				m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeDuplicateResponses, model.TaskOptions{AdditionalData: map[string]any{"unitIds": []int64{1, 2}}}).Once().Return(&model.Task{ID: 5}, nil)
				m.On("GetTask", mock.Anything, int64(1), int64(5)).Once().Return(&model.Task{ID: 5, Status: model.TaskStatusCompleted}, nil)
				m.On("GetTaskResults", mock.Anything, int64(1), int64(5)).Once().Return(model.RawResult(`{"total":0}`), nil)
			},
			expResult: &model.ValidationResult{Status: model.ResultStatusSuccess, Timestamp: fixedNow, Details: model.RawResult(`{"total":0}`)},
			expStored: model.ValidationResult{Status: model.ResultStatusSuccess, Timestamp: fixedNow, Details: model.RawResult(`{"total":0}`)},
		},
		"A failed task should return its message and keep the previous result.": {
			req: step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables},
			mock: func(m *taskservicemock.MockService) {
				m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 5}, nil)
				m.On("GetTask", mock.Anything, int64(1), int64(5)).Once().Return(&model.Task{ID: 5, Status: model.TaskStatusFailed, Error: "boom"}, nil)
			},
			expStored: previous,
			expErr: func(t *testing.T, err error) {
				var tErr *model.TaskFailedError
				require.ErrorAs(t, err, &tErr)
				assert.Equal(t, "boom", tErr.Error())
			},
		},
		"A failed task without message should use the default one.": {
			req: step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables},
			mock: func(m *taskservicemock.MockService) {
				m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 5}, nil)
				m.On("GetTask", mock.Anything, int64(1), int64(5)).Once().Return(&model.Task{ID: 5, Status: model.TaskStatusFailed}, nil)
			},
			expStored: previous,
			expErr: func(t *testing.T, err error) {
				assert.EqualError(t, err, model.DefaultTaskFailedMessage)
			},
		},
		"A rejected creation should return a creation error.": {
			req: step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables},
			mock: func(m *taskservicemock.MockService) {
				m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(nil, errors.New("forbidden"))
			},
			expStored: previous,
			expErr: func(t *testing.T, err error) {
				var cErr *model.TaskCreationError
				assert.ErrorAs(t, err, &cErr)
			},
		},
		"A poll failure should return a transport error.": {
			req: step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables},
			mock: func(m *taskservicemock.MockService) {
				m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 5}, nil)
				m.On("GetTask", mock.Anything, int64(1), int64(5)).Once().Return(nil, errors.New("bad gateway"))
			},
			expStored: previous,
			expErr: func(t *testing.T, err error) {
				var pErr *model.PollingTransportError
				assert.ErrorAs(t, err, &pErr)
			},
		},
		"A result fetch failure should return a fetch error.": {
			req: step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables},
			mock: func(m *taskservicemock.MockService) {
				m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 5}, nil)
				m.On("GetTask", mock.Anything, int64(1), int64(5)).Once().Return(&model.Task{ID: 5, Status: model.TaskStatusCompleted}, nil)
				m.On("GetTaskResults", mock.Anything, int64(1), int64(5)).Once().Return(nil, errors.New("timeout"))
			},
			expStored: previous,
			expErr: func(t *testing.T, err error) {
				var fErr *model.ResultFetchError
				assert.ErrorAs(t, err, &fErr)
			},
		},
		"Remediation types should not be run as validations.": {
			req:       step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeDeleteResponses},
			mock:      func(m *taskservicemock.MockService) {},
			expStored: previous,
			expErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, model.ErrNotValid)
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			m := taskservicemock.NewMockService(t)
			test.mock(m)

			store, err := state.NewStore(state.StoreConfig{})
			require.NoError(err)
			store.SetValidationResult(1, test.req.ValidationType, previous)

			svc, err := step.NewService(step.ServiceConfig{
				TaskService: m,
				StateStore:  store,
				TimeNow:     func() time.Time { return fixedNow },
			})
			require.NoError(err)

			test.req.PollInterval = time.Millisecond
			gotResult, err := svc.Run(context.Background(), test.req)

			if test.expErr != nil {
				require.Error(err)
				test.expErr(t, err)
			} else {
				require.NoError(err)
				assert.Equal(test.expResult, gotResult)
			}

			assert.Equal(test.expStored, store.GetAllValidationResults(1)[test.req.ValidationType])
			assert.Empty(store.GetAllTaskIDs(1), "active task should always be unregistered")
		})
	}
}

func TestServiceRunRegistersTaskBeforePolling(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := taskservicemock.NewMockService(t)
	m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeTestTakers, model.TaskOptions{}).Once().Return(&model.Task{ID: 9}, nil)
	m.On("GetTaskResults", mock.Anything, int64(1), int64(9)).Once().Return(model.RawResult(`{"testTakersFound":true,"missingPersons":[]}`), nil)

	store, err := state.NewStore(state.StoreConfig{})
	require.NoError(err)

	var runningWhilePolling bool
	poller := pollerFunc(func(ctx context.Context, workspaceID, taskID int64, interval time.Duration) <-chan poll.Event {
		runningWhilePolling = store.IsRunning(1, model.ValidationTypeTestTakers)
		ch := make(chan poll.Event, 1)
		ch <- poll.Event{Task: &model.Task{ID: 9, Status: model.TaskStatusCompleted}}
		close(ch)
		return ch
	})

	svc, err := step.NewService(step.ServiceConfig{TaskService: m, StateStore: store, Poller: poller})
	require.NoError(err)

	res, err := svc.Run(context.Background(), step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeTestTakers})
	require.NoError(err)
	assert.Equal(model.ResultStatusSuccess, res.Status)
	assert.True(runningWhilePolling)
	assert.False(store.IsRunning(1, model.ValidationTypeTestTakers))
	assert.Equal(model.ResultStatusSuccess, store.GetAllValidationResults(1)[model.ValidationTypeTestTakers].Status)
}

func TestServiceRunUnexpectedStatus(t *testing.T) {
	m := taskservicemock.NewMockService(t)
	m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 9}, nil)

	poller := pollerFunc(func(ctx context.Context, workspaceID, taskID int64, interval time.Duration) <-chan poll.Event {
		ch := make(chan poll.Event, 1)
		ch <- poll.Event{Task: &model.Task{ID: 9, Status: model.TaskStatusProcessing}}
		close(ch)
		return ch
	})

	store, _ := state.NewStore(state.StoreConfig{})
	svc, err := step.NewService(step.ServiceConfig{TaskService: m, StateStore: store, Poller: poller})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables})
	var uErr *model.UnexpectedStatusError
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, model.TaskStatusProcessing, uErr.Status)
	assert.Empty(t, store.GetAllTaskIDs(1))
}

func TestServiceRunCancelled(t *testing.T) {
	m := taskservicemock.NewMockService(t)
	m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 9}, nil)
	m.On("GetTask", mock.Anything, int64(1), int64(9)).Maybe().Return(&model.Task{ID: 9, Status: model.TaskStatusProcessing}, nil)

	store, _ := state.NewStore(state.StoreConfig{})
	svc, err := step.NewService(step.ServiceConfig{TaskService: m, StateStore: store})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = svc.Run(ctx, step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables, PollInterval: time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, store.GetAllTaskIDs(1))
}

func TestServiceRunDeleteResponses(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := taskservicemock.NewMockService(t)
	m.On("CreateDeleteResponsesTask", mock.Anything, int64(1), []int64{3, 4}).Once().Return(&model.Task{ID: 11}, nil)
	m.On("GetTask", mock.Anything, int64(1), int64(11)).Once().Return(&model.Task{ID: 11, Status: model.TaskStatusCompleted}, nil)
	m.On("GetTaskResults", mock.Anything, int64(1), int64(11)).Once().Return(model.RawResult(`{"success":true,"deletedCount":2}`), nil)

	store, _ := state.NewStore(state.StoreConfig{})
	svc, err := step.NewService(step.ServiceConfig{TaskService: m, StateStore: store})
	require.NoError(err)

	raw, err := svc.RunDeleteResponses(context.Background(), 1, []int64{3, 4}, time.Millisecond)
	require.NoError(err)
	assert.JSONEq(`{"success":true,"deletedCount":2}`, string(raw))
	assert.Empty(store.GetAllValidationResults(1))
	assert.Empty(store.GetAllTaskIDs(1))

	_, err = svc.RunDeleteResponses(context.Background(), 1, nil, time.Millisecond)
	assert.ErrorIs(err, model.ErrNotValid)
}

func TestServiceRunDeleteAllResponses(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := taskservicemock.NewMockService(t)
	m.On("CreateDeleteAllResponsesTask", mock.Anything, int64(1), model.ValidationTypeDuplicateResponses).Once().Return(&model.Task{ID: 12}, nil)
	m.On("GetTask", mock.Anything, int64(1), int64(12)).Once().Return(&model.Task{ID: 12, Status: model.TaskStatusFailed, Error: "locked"}, nil)

	store, _ := state.NewStore(state.StoreConfig{})
	svc, err := step.NewService(step.ServiceConfig{TaskService: m, StateStore: store})
	require.NoError(err)

	_, err = svc.RunDeleteAllResponses(context.Background(), 1, model.ValidationTypeDuplicateResponses, time.Millisecond)
	assert.EqualError(err, "locked")
	assert.Empty(store.GetAllTaskIDs(1))

	_, err = svc.RunDeleteAllResponses(context.Background(), 1, model.ValidationTypeDeleteResponses, time.Millisecond)
	assert.ErrorIs(err, model.ErrNotValid)
}

type recordingStore struct {
	calls []string
}

func (r *recordingStore) SetTaskID(_ int64, vt model.ValidationType, _ int64) {
	r.calls = append(r.calls, "set-task:"+string(vt))
}

func (r *recordingStore) RemoveTaskID(_ int64, vt model.ValidationType, _ int64) {
	r.calls = append(r.calls, "remove-task:"+string(vt))
}

func (r *recordingStore) SetValidationResult(_ int64, vt model.ValidationType, _ model.ValidationResult) {
	r.calls = append(r.calls, "set-result:"+string(vt))
}

func TestServiceRunStateOrder(t *testing.T) {
	m := taskservicemock.NewMockService(t)
	m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeResponseStatus, model.TaskOptions{}).Once().Return(&model.Task{ID: 2}, nil)
	m.On("GetTask", mock.Anything, int64(1), int64(2)).Once().Return(&model.Task{ID: 2, Status: model.TaskStatusCompleted}, nil)
	m.On("GetTaskResults", mock.Anything, int64(1), int64(2)).Once().Return(model.RawResult(`{"total":0}`), nil)

	store := &recordingStore{}
	svc, err := step.NewService(step.ServiceConfig{TaskService: m, StateStore: store})
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeResponseStatus, PollInterval: time.Millisecond})
	require.NoError(t, err)

	exp := []string{"set-task:responseStatus", "set-result:responseStatus", "remove-task:responseStatus"}
	assert.Equal(t, exp, store.calls)
}

func TestServiceRunOverlappingSameType(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	m := taskservicemock.NewMockService(t)
	m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 10}, nil)
	m.On("CreateTask", mock.Anything, int64(1), model.ValidationTypeVariables, model.TaskOptions{}).Once().Return(&model.Task{ID: 20}, nil)
	m.On("GetTaskResults", mock.Anything, int64(1), mock.Anything).Return(model.RawResult(`{"total":0}`), nil)

	// Each task finishes when its channel gets the terminal event.
	events := map[int64]chan poll.Event{
		10: make(chan poll.Event, 1),
		20: make(chan poll.Event, 1),
	}
	poller := pollerFunc(func(_ context.Context, _, taskID int64, _ time.Duration) <-chan poll.Event {
		return events[taskID]
	})

	store, _ := state.NewStore(state.StoreConfig{})
	svc, err := step.NewService(step.ServiceConfig{TaskService: m, StateStore: store, Poller: poller})
	require.NoError(err)

	run := func() <-chan error {
		errC := make(chan error, 1)
		go func() {
			_, err := svc.Run(context.Background(), step.Request{WorkspaceID: 1, ValidationType: model.ValidationTypeVariables})
			errC <- err
		}()
		return errC
	}

	firstErr := run()
	require.Eventually(func() bool { return store.GetAllTaskIDs(1)[model.ValidationTypeVariables] == 10 }, time.Second, time.Millisecond)
	secondErr := run()
	require.Eventually(func() bool { return store.GetAllTaskIDs(1)[model.ValidationTypeVariables] == 20 }, time.Second, time.Millisecond)

	// The second run ends first, the first task is still polling.
	events[20] <- poll.Event{Task: &model.Task{ID: 20, Status: model.TaskStatusCompleted}}
	close(events[20])
	require.NoError(<-secondErr)
	assert.True(store.IsRunning(1, model.ValidationTypeVariables))
	assert.Equal(map[model.ValidationType]int64{"variables": 10}, store.GetAllTaskIDs(1))

	events[10] <- poll.Event{Task: &model.Task{ID: 10, Status: model.TaskStatusCompleted}}
	close(events[10])
	require.NoError(<-firstErr)
	assert.False(store.IsRunning(1, model.ValidationTypeVariables))
	assert.Empty(store.GetAllTaskIDs(1))
}

package lib

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slok/valtask/internal/app/batch"
	"github.com/slok/valtask/internal/app/status"
	"github.com/slok/valtask/internal/app/step"
	"github.com/slok/valtask/internal/model"
)

// StartBatch starts the validation batch of a workspace in the background.
//
// When the workspace already has a batch running nothing is started and started
// is false. Otherwise done is closed once the batch ended and its state was
// persisted. Cancelling ctx stops the batch and marks it as failed.
func (c *Client) StartBatch(ctx context.Context, workspaceID int64, opts *BatchOpts) (done <-chan struct{}, started bool, err error) {
	if err := c.load(ctx, workspaceID); err != nil {
		return nil, false, mapError(err)
	}

	req := batch.Request{WorkspaceID: workspaceID, PollInterval: c.pollInterval}
	if opts != nil {
		req.Force = opts.Force
	}

	batchDone, started := c.batches.Start(ctx, req)
	if !started {
		return nil, false, nil
	}

	// Batch transitions and heartbeats are persisted while it runs, so other
	// processes sharing the database see it alive.
	watchCtx, watchCancel := context.WithCancel(context.WithoutCancel(ctx))
	batchStates := c.store.ObserveBatchState(watchCtx, workspaceID)
	persisted := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(persisted)
	loop:
		for {
			select {
			case <-batchStates:
				if err := c.persist(ctx, workspaceID); err != nil {
					c.logger.Warningf("Could not persist batch state: %s", err)
				}
			case <-batchDone:
				break loop
			}
		}
		watchCancel()
		if err := c.persist(ctx, workspaceID); err != nil {
			c.logger.Errorf("Could not persist batch: %s", err)
		}
	}()

	return persisted, true, nil
}

// RunBatch runs the validation batch of a workspace and waits for it to end.
//
// A batch that fails is not an error, the returned report has its state.
// [ErrAlreadyRunning] is returned when the workspace already has a batch running.
func (c *Client) RunBatch(ctx context.Context, workspaceID int64, opts *BatchOpts) (*WorkspaceReport, error) {
	done, started, err := c.StartBatch(ctx, workspaceID, opts)
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, fmt.Errorf("workspace %d: %w", workspaceID, ErrAlreadyRunning)
	}
	<-done

	return c.Status(context.WithoutCancel(ctx), workspaceID, false)
}

// RunValidation runs a single validation of a workspace and stores its result.
func (c *Client) RunValidation(ctx context.Context, workspaceID int64, vt ValidationType, opts *TaskOptions) (*ValidationResult, error) {
	if err := c.load(ctx, workspaceID); err != nil {
		return nil, mapError(err)
	}

	r, err := c.steps.Run(ctx, step.Request{
		WorkspaceID:    workspaceID,
		ValidationType: model.ValidationType(vt),
		Options:        toInternalTaskOptions(opts),
		PollInterval:   c.pollInterval,
	})
	if err != nil {
		return nil, mapError(err)
	}

	if err := c.persist(ctx, workspaceID); err != nil {
		return nil, err
	}

	res := fromInternalResult(*r)
	return &res, nil
}

// DeleteResponses runs the remediation that deletes responses of a workspace
// and returns the raw task results.
func (c *Client) DeleteResponses(ctx context.Context, workspaceID int64, responseIDs []int64) (json.RawMessage, error) {
	raw, err := c.steps.RunDeleteResponses(ctx, workspaceID, responseIDs, c.pollInterval)
	if err != nil {
		return nil, mapError(err)
	}
	return json.RawMessage(raw), nil
}

// DeleteAllResponses runs the remediation that deletes every response flagged
// by a validation and returns the raw task results.
func (c *Client) DeleteAllResponses(ctx context.Context, workspaceID int64, vt ValidationType) (json.RawMessage, error) {
	raw, err := c.steps.RunDeleteAllResponses(ctx, workspaceID, model.ValidationType(vt), c.pollInterval)
	if err != nil {
		return nil, mapError(err)
	}
	return json.RawMessage(raw), nil
}

// Status returns the validation report of a workspace.
func (c *Client) Status(ctx context.Context, workspaceID int64, withDetails bool) (*WorkspaceReport, error) {
	if err := c.load(ctx, workspaceID); err != nil {
		return nil, mapError(err)
	}

	r, err := c.status.Run(ctx, status.Request{WorkspaceID: workspaceID, WithDetails: withDetails})
	if err != nil {
		return nil, mapError(err)
	}

	report := fromInternalReport(*r)
	return &report, nil
}

// WatchBatch streams the batch state of a workspace, the current one first and
// then every change, until ctx is done. Slow readers only miss intermediate states.
func (c *Client) WatchBatch(ctx context.Context, workspaceID int64) (<-chan BatchState, error) {
	if err := c.load(ctx, workspaceID); err != nil {
		return nil, mapError(err)
	}
	return forward(ctx, c.store.ObserveBatchState(ctx, workspaceID), fromInternalBatchState), nil
}

// WatchResults streams the validation results of a workspace like [Client.WatchBatch].
func (c *Client) WatchResults(ctx context.Context, workspaceID int64) (<-chan map[ValidationType]ValidationResult, error) {
	if err := c.load(ctx, workspaceID); err != nil {
		return nil, mapError(err)
	}
	return forward(ctx, c.store.ObserveValidationResults(ctx, workspaceID), fromInternalResults), nil
}

// WatchTasks streams the active task IDs of a workspace like [Client.WatchBatch].
func (c *Client) WatchTasks(ctx context.Context, workspaceID int64) (<-chan map[ValidationType]int64, error) {
	return forward(ctx, c.store.ObserveTaskIDs(ctx, workspaceID), fromInternalTaskIDs), nil
}

func forward[T, U any](ctx context.Context, in <-chan T, conv func(T) U) <-chan U {
	out := make(chan U, cap(in))
	go func() {
		defer close(out)
		for v := range in {
			select {
			case out <- conv(v):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

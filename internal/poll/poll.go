// Package poll watches remote validation tasks until they reach a terminal status.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
)

// DefaultInterval is the polling interval used when none is set.
const DefaultInterval = 2 * time.Second

// TaskGetter knows how to get the current state of a task.
type TaskGetter interface {
	GetTask(ctx context.Context, workspaceID, taskID int64) (*model.Task, error)
}

// Event is a single poll observation. Only one of Task or Err is set.
type Event struct {
	Task *model.Task
	Err  error
}

// PollerConfig is the configuration for the poller.
type PollerConfig struct {
	TaskGetter TaskGetter
	Logger     log.Logger
}

func (c *PollerConfig) defaults() error {
	if c.TaskGetter == nil {
		return fmt.Errorf("task getter is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "poll.Poller"})
	return nil
}

// Poller polls task statuses on a fixed interval.
type Poller struct {
	getter TaskGetter
	logger log.Logger
}

// NewPoller returns a new poller.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Poller{
		getter: cfg.TaskGetter,
		logger: cfg.Logger,
	}, nil
}

// Poll starts polling a task and returns the observed statuses.
//
// The first poll happens after one interval. Every observed status is sent,
// the channel is closed right after sending a completed or failed status, or
// after sending a transport error. Cancelling the context stops polling and
// closes the channel, a request already in flight is not aborted but its
// result is dropped.
func (p *Poller) Poll(ctx context.Context, workspaceID, taskID int64, interval time.Duration) <-chan Event {
	if interval <= 0 {
		interval = DefaultInterval
	}

	events := make(chan Event)
	go func() {
		defer close(events)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		reqCtx := context.WithoutCancel(ctx)
		for {
			select {
			case <-ctx.Done():
				p.logger.Debugf("Stopped polling task %d: %s", taskID, ctx.Err())
				return
			case <-ticker.C:
			}

			task, err := p.getter.GetTask(reqCtx, workspaceID, taskID)
			if err == nil && task == nil {
				err = fmt.Errorf("empty task response: %w", model.ErrNotFound)
			}
			ev := Event{Task: task}
			if err != nil {
				ev = Event{Err: &model.PollingTransportError{TaskID: taskID, Err: err}}
			}

			select {
			case <-ctx.Done():
				p.logger.Debugf("Dropped poll result of task %d: %s", taskID, ctx.Err())
				return
			case events <- ev:
			}

			if ev.Err != nil || ev.Task.Status.IsTerminal() {
				return
			}
		}
	}()

	return events
}

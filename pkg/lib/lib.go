package lib

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/slok/valtask/internal/app/batch"
	"github.com/slok/valtask/internal/app/status"
	"github.com/slok/valtask/internal/app/step"
	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/poll"
	"github.com/slok/valtask/internal/state"
	"github.com/slok/valtask/internal/state/sqlite"
	"github.com/slok/valtask/internal/taskservice"
	"github.com/slok/valtask/internal/taskservice/fake"
	"github.com/slok/valtask/internal/taskservice/rest"
	"github.com/slok/valtask/pkg/lib/log"
)

// Config configures the SDK client.
type Config struct {
	// TaskService selects the task service implementation.
	// Default: [TaskServiceHTTP].
	TaskService TaskServiceType

	// APIURL is the validation task API base URL, required for [TaskServiceHTTP].
	APIURL string
	// APIToken is the optional bearer token for the API.
	APIToken string
	// HTTPClient is the client used for API requests.
	// Default: a client with a 60s timeout.
	HTTPClient *http.Client

	// FakeScenario is a YAML scenario file for [TaskServiceFake].
	// Default: every task completes on its first poll and passes.
	FakeScenario string

	// DBPath is the SQLite database path. When empty the state is not persisted.
	DBPath string

	// PollInterval is the task status polling interval.
	// Default: 2s.
	PollInterval time.Duration

	// Logger receives structured log output from the SDK.
	// Default: noop (silent).
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.TaskService == "" {
		c.TaskService = TaskServiceHTTP
	}

	if c.PollInterval <= 0 {
		c.PollInterval = poll.DefaultInterval
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	store        *state.Store
	repo         *sqlite.Repository
	steps        *step.Service
	batches      *batch.Service
	status       *status.Service
	pollInterval time.Duration
	logger       log.Logger

	mu     sync.Mutex
	loaded map[int64]bool
	wg     sync.WaitGroup
}

// New creates a new SDK client.
//
// The caller must call [Client.Close] when done.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w: %w", err, ErrNotValid)
	}

	tasks, err := newTaskService(ctx, cfg)
	if err != nil {
		return nil, mapError(err)
	}

	store, err := state.NewStore(state.StoreConfig{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create state store: %w", err)
	}

	steps, err := step.NewService(step.ServiceConfig{
		TaskService: tasks,
		StateStore:  store,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create step service: %w", err)
	}

	var claimer batch.BatchClaimer
	var repo *sqlite.Repository
	if cfg.DBPath != "" {
		repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
			DBPath: cfg.DBPath,
			Logger: cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create repository: %w", err)
		}
		claimer = batch.BatchClaimerFunc(func(ctx context.Context, workspaceID int64) error {
			return repo.ClaimBatch(ctx, store.Snapshot(workspaceID))
		})
	}

	batches, err := batch.NewService(batch.ServiceConfig{
		StepRunner: steps,
		StateStore: store,
		Claimer:    claimer,
		Logger:     cfg.Logger,
	})
	if err != nil {
		if repo != nil {
			repo.Close()
		}
		return nil, fmt.Errorf("could not create batch service: %w", err)
	}

	statusSvc, err := status.NewService(status.ServiceConfig{StateStore: store, Logger: cfg.Logger})
	if err != nil {
		if repo != nil {
			repo.Close()
		}
		return nil, fmt.Errorf("could not create status service: %w", err)
	}

	return &Client{
		store:        store,
		repo:         repo,
		steps:        steps,
		batches:      batches,
		status:       statusSvc,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		loaded:       map[int64]bool{},
	}, nil
}

func newTaskService(ctx context.Context, cfg Config) (taskservice.Service, error) {
	switch cfg.TaskService {
	case TaskServiceFake:
		var scenario fake.Scenario
		if cfg.FakeScenario != "" {
			repo := fake.NewScenarioYAMLRepository(os.DirFS(filepath.Dir(cfg.FakeScenario)))
			s, err := repo.GetScenario(ctx, filepath.Base(cfg.FakeScenario))
			if err != nil {
				return nil, fmt.Errorf("could not load fake scenario: %w", err)
			}
			scenario = *s
		}
		return fake.NewService(fake.ServiceConfig{Scenario: scenario, Logger: cfg.Logger})

	case TaskServiceHTTP:
		svc, err := rest.NewService(rest.ServiceConfig{
			BaseURL:    cfg.APIURL,
			Token:      cfg.APIToken,
			HTTPClient: cfg.HTTPClient,
			Logger:     cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", err, model.ErrNotValid)
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("unsupported task service %q: %w", cfg.TaskService, model.ErrNotValid)
	}
}

// Close waits for the background batches to end and releases the database.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	c.wg.Wait()
	if c.repo != nil {
		return c.repo.Close()
	}
	return nil
}

// load restores the persisted state of a workspace the first time it's used.
// A batch another process was running when loaded is reloaded until it ends.
func (c *Client) load(ctx context.Context, workspaceID int64) error {
	if c.repo == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	foreignRunning := c.store.GetBatchState(workspaceID).Status == model.BatchStatusRunning && !c.batches.IsRunning(workspaceID)
	if c.loaded[workspaceID] && !foreignRunning {
		return nil
	}

	snap, err := c.repo.GetSnapshot(ctx, workspaceID)
	switch {
	case errors.Is(err, model.ErrNotFound):
	case err != nil:
		return fmt.Errorf("could not load workspace %d state: %w", workspaceID, err)
	default:
		c.store.Restore(*snap)
	}

	c.loaded[workspaceID] = true
	return nil
}

func (c *Client) persist(ctx context.Context, workspaceID int64) error {
	if c.repo == nil {
		return nil
	}

	err := c.repo.SaveSnapshot(context.WithoutCancel(ctx), c.store.Snapshot(workspaceID))
	if err != nil {
		return fmt.Errorf("could not persist workspace %d state: %w", workspaceID, err)
	}
	return nil
}

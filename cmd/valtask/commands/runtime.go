package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/slok/valtask/internal/model"
	"github.com/slok/valtask/internal/printer"
	"github.com/slok/valtask/internal/state"
	"github.com/slok/valtask/internal/state/sqlite"
	"github.com/slok/valtask/internal/taskservice"
	"github.com/slok/valtask/internal/taskservice/fake"
	"github.com/slok/valtask/internal/taskservice/rest"
)

// workspaceState is the in-memory state store backed by the SQLite snapshots.
type workspaceState struct {
	store *state.Store
	repo  *sqlite.Repository
}

// openWorkspaceState creates the state store and restores the persisted state of
// the workspaces.
func openWorkspaceState(ctx context.Context, rootCmd *RootCommand, workspaceIDs ...int64) (*workspaceState, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: rootCmd.DBPath,
		Logger: rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	store, err := state.NewStore(state.StoreConfig{Logger: rootCmd.Logger})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("could not create state store: %w", err)
	}

	for _, id := range workspaceIDs {
		snap, err := repo.GetSnapshot(ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			repo.Close()
			return nil, fmt.Errorf("could not load workspace %d state: %w", id, err)
		}
		store.Restore(*snap)
	}

	return &workspaceState{store: store, repo: repo}, nil
}

// persist saves the workspace state, even when ctx is already cancelled.
func (w *workspaceState) persist(ctx context.Context, workspaceID int64) error {
	err := w.repo.SaveSnapshot(context.WithoutCancel(ctx), w.store.Snapshot(workspaceID))
	if err != nil {
		return fmt.Errorf("could not persist workspace %d state: %w", workspaceID, err)
	}
	return nil
}

// claimBatch persists the batch state only when no other live process is
// running the workspace batch.
func (w *workspaceState) claimBatch(ctx context.Context, workspaceID int64) error {
	return w.repo.ClaimBatch(ctx, w.store.Snapshot(workspaceID))
}

func (w *workspaceState) close() error { return w.repo.Close() }

func newTaskService(ctx context.Context, rootCmd *RootCommand) (taskservice.Service, error) {
	switch rootCmd.TaskService {
	case TaskServiceFake:
		var scenario fake.Scenario
		if rootCmd.FakeScenario != "" {
			repo := fake.NewScenarioYAMLRepository(os.DirFS(filepath.Dir(rootCmd.FakeScenario)))
			s, err := repo.GetScenario(ctx, filepath.Base(rootCmd.FakeScenario))
			if err != nil {
				return nil, fmt.Errorf("could not load fake scenario: %w", err)
			}
			scenario = *s
		}

		svc, err := fake.NewService(fake.ServiceConfig{Scenario: scenario, Logger: rootCmd.Logger})
		if err != nil {
			return nil, fmt.Errorf("could not create fake task service: %w", err)
		}
		return svc, nil

	default:
		svc, err := rest.NewService(rest.ServiceConfig{
			BaseURL: rootCmd.APIURL,
			Token:   rootCmd.APIToken,
			Logger:  rootCmd.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create task service: %w", err)
		}
		return svc, nil
	}
}

func newPrinter(format string, w io.Writer) printer.Printer {
	switch format {
	case "json":
		return printer.NewJSONPrinter(w)
	default:
		return printer.NewTablePrinter(w)
	}
}

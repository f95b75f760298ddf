package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/valtask/internal/app/batch"
	"github.com/slok/valtask/internal/app/status"
	"github.com/slok/valtask/internal/app/step"
	"github.com/slok/valtask/internal/log"
	"github.com/slok/valtask/internal/model"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	workspaceID int64
	force       bool
	format      string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run the validation batch of a workspace.")
	c.Cmd.Arg("workspace", "Workspace ID.").Required().Int64Var(&c.workspaceID)
	c.Cmd.Flag("force", "Run validations that already have a result.").BoolVar(&c.force)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger.WithValues(log.Kv{"workspace": c.workspaceID})

	ws, err := openWorkspaceState(ctx, c.rootCmd, c.workspaceID)
	if err != nil {
		return err
	}
	defer ws.close()

	tasks, err := newTaskService(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	stepSvc, err := step.NewService(step.ServiceConfig{
		TaskService: tasks,
		StateStore:  ws.store,
		Logger:      c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create step service: %w", err)
	}

	batchSvc, err := batch.NewService(batch.ServiceConfig{
		StepRunner: stepSvc,
		StateStore: ws.store,
		Claimer:    batch.BatchClaimerFunc(ws.claimBatch),
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create batch service: %w", err)
	}

	statusSvc, err := status.NewService(status.ServiceConfig{StateStore: ws.store, Logger: c.rootCmd.Logger})
	if err != nil {
		return fmt.Errorf("could not create status service: %w", err)
	}

	// Persist every batch transition and heartbeat, so other processes see the
	// batch alive and an interrupted run is visible afterwards.
	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for st := range ws.store.ObserveBatchState(watchCtx, c.workspaceID) {
			if st.Status == model.BatchStatusRunning && st.CurrentStep != "" {
				logger.Infof("Running %s validation", st.CurrentStep)
			}
			if err := ws.persist(ctx, c.workspaceID); err != nil {
				logger.Warningf("Could not persist batch state: %s", err)
			}
		}
	}()

	done, started := batchSvc.Start(ctx, batch.Request{
		WorkspaceID:  c.workspaceID,
		Force:        c.force,
		PollInterval: c.rootCmd.PollInterval,
	})
	if !started {
		watchCancel()
		<-watchDone
		return newPrinter(c.format, c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("Workspace %d already has a validation batch running", c.workspaceID))
	}
	<-done
	watchCancel()
	<-watchDone

	if err := ws.persist(ctx, c.workspaceID); err != nil {
		return err
	}

	report, err := statusSvc.Run(context.WithoutCancel(ctx), status.Request{WorkspaceID: c.workspaceID})
	if err != nil {
		return fmt.Errorf("could not get workspace status: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintReport(*report); err != nil {
		return fmt.Errorf("could not print report: %w", err)
	}

	if report.Batch.Status == model.BatchStatusFailed {
		return fmt.Errorf("validation batch failed: %s", report.Batch.Error)
	}

	return nil
}

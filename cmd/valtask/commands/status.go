package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/valtask/internal/app/status"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	workspaceID int64
	details     bool
	format      string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Get the validation status of a workspace.")
	c.Cmd.Arg("workspace", "Workspace ID.").Required().Int64Var(&c.workspaceID)
	c.Cmd.Flag("details", "Include the raw validation results.").BoolVar(&c.details)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	ws, err := openWorkspaceState(ctx, c.rootCmd, c.workspaceID)
	if err != nil {
		return err
	}
	defer ws.close()

	svc, err := status.NewService(status.ServiceConfig{
		StateStore: ws.store,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	report, err := svc.Run(ctx, status.Request{
		WorkspaceID: c.workspaceID,
		WithDetails: c.details,
	})
	if err != nil {
		return fmt.Errorf("could not get workspace status: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintReport(*report); err != nil {
		return fmt.Errorf("could not print status: %w", err)
	}

	return nil
}

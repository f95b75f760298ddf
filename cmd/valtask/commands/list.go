package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/valtask/internal/app/status"
	"github.com/slok/valtask/internal/model"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List the workspaces with validation state.")
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	ws, err := openWorkspaceState(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer ws.close()

	ids, err := ws.repo.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("could not list workspaces: %w", err)
	}

	svc, err := status.NewService(status.ServiceConfig{
		StateStore: ws.store,
		Logger:     c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	reports := make([]model.WorkspaceReport, 0, len(ids))
	for _, id := range ids {
		snap, err := ws.repo.GetSnapshot(ctx, id)
		if err != nil {
			return fmt.Errorf("could not load workspace %d state: %w", id, err)
		}
		ws.store.Restore(*snap)

		report, err := svc.Run(ctx, status.Request{WorkspaceID: id})
		if err != nil {
			return fmt.Errorf("could not get workspace %d status: %w", id, err)
		}
		reports = append(reports, *report)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintWorkspaces(reports); err != nil {
		return fmt.Errorf("could not print workspaces: %w", err)
	}

	return nil
}

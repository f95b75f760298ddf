package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/valtask/internal/app/step"
	"github.com/slok/valtask/internal/model"
)

func newRemediationStepService(ctx context.Context, rootCmd *RootCommand, ws *workspaceState) (*step.Service, error) {
	tasks, err := newTaskService(ctx, rootCmd)
	if err != nil {
		return nil, err
	}

	svc, err := step.NewService(step.ServiceConfig{
		TaskService: tasks,
		StateStore:  ws.store,
		Logger:      rootCmd.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create step service: %w", err)
	}

	return svc, nil
}

type DeleteResponsesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	workspaceID int64
	responseIDs []int64
	format      string
}

// NewDeleteResponsesCommand returns the delete responses remediation command.
func NewDeleteResponsesCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *DeleteResponsesCommand {
	c := &DeleteResponsesCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("delete-responses", "Delete specific responses of a workspace.")
	c.Cmd.Arg("workspace", "Workspace ID.").Required().Int64Var(&c.workspaceID)
	c.Cmd.Arg("response-ids", "Response IDs to delete.").Required().Int64ListVar(&c.responseIDs)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c DeleteResponsesCommand) Name() string { return c.Cmd.FullCommand() }

func (c DeleteResponsesCommand) Run(ctx context.Context) error {
	ws, err := openWorkspaceState(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer ws.close()

	svc, err := newRemediationStepService(ctx, c.rootCmd, ws)
	if err != nil {
		return err
	}

	res, err := svc.RunDeleteResponses(ctx, c.workspaceID, c.responseIDs, c.rootCmd.PollInterval)
	if err != nil {
		return fmt.Errorf("could not delete responses: %w", err)
	}

	return newPrinter(c.format, c.rootCmd.Stdout).PrintRaw(res)
}

type DeleteAllResponsesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	workspaceID    int64
	validationType string
	format         string
}

// NewDeleteAllResponsesCommand returns the delete all responses remediation command.
func NewDeleteAllResponsesCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *DeleteAllResponsesCommand {
	c := &DeleteAllResponsesCommand{rootCmd: rootCmd}

	types := make([]string, 0, len(model.BatchOrder))
	for _, vt := range model.BatchOrder {
		types = append(types, string(vt))
	}

	c.Cmd = parent.Command("delete-all-responses", "Delete every response flagged by a validation.")
	c.Cmd.Arg("workspace", "Workspace ID.").Required().Int64Var(&c.workspaceID)
	c.Cmd.Arg("validation", "Validation type that flagged the responses.").Required().EnumVar(&c.validationType, types...)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c DeleteAllResponsesCommand) Name() string { return c.Cmd.FullCommand() }

func (c DeleteAllResponsesCommand) Run(ctx context.Context) error {
	ws, err := openWorkspaceState(ctx, c.rootCmd)
	if err != nil {
		return err
	}
	defer ws.close()

	svc, err := newRemediationStepService(ctx, c.rootCmd, ws)
	if err != nil {
		return err
	}

	res, err := svc.RunDeleteAllResponses(ctx, c.workspaceID, model.ValidationType(c.validationType), c.rootCmd.PollInterval)
	if err != nil {
		return fmt.Errorf("could not delete %s responses: %w", c.validationType, err)
	}

	return newPrinter(c.format, c.rootCmd.Stdout).PrintRaw(res)
}

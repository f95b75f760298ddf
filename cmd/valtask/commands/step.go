package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/valtask/internal/app/step"
	"github.com/slok/valtask/internal/model"
)

type StepCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	workspaceID    int64
	validationType string
	page           int
	limit          int
	data           []string
	format         string
}

// NewStepCommand returns the step command.
func NewStepCommand(rootCmd *RootCommand, app *kingpin.Application) *StepCommand {
	c := &StepCommand{rootCmd: rootCmd}

	types := make([]string, 0, len(model.BatchOrder))
	for _, vt := range model.BatchOrder {
		types = append(types, string(vt))
	}

	c.Cmd = app.Command("step", "Run a single validation of a workspace.")
	c.Cmd.Arg("workspace", "Workspace ID.").Required().Int64Var(&c.workspaceID)
	c.Cmd.Arg("validation", "Validation type.").Required().EnumVar(&c.validationType, types...)
	c.Cmd.Flag("page", "Result page.").IntVar(&c.page)
	c.Cmd.Flag("limit", "Result page size.").IntVar(&c.limit)
	c.Cmd.Flag("data", "Additional task data in KEY=VALUE form, repeat a key to send a list.").StringsVar(&c.data)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StepCommand) Name() string { return c.Cmd.FullCommand() }

func (c StepCommand) Run(ctx context.Context) error {
	data, err := parseDataSpecs(c.data)
	if err != nil {
		return err
	}

	opts := model.TaskOptions{AdditionalData: data}
	if c.page > 0 {
		opts.Page = &c.page
	}
	if c.limit > 0 {
		opts.Limit = &c.limit
	}

	ws, err := openWorkspaceState(ctx, c.rootCmd, c.workspaceID)
	if err != nil {
		return err
	}
	defer ws.close()

	tasks, err := newTaskService(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	svc, err := step.NewService(step.ServiceConfig{
		TaskService: tasks,
		StateStore:  ws.store,
		Logger:      c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create step service: %w", err)
	}

	result, err := svc.Run(ctx, step.Request{
		WorkspaceID:    c.workspaceID,
		ValidationType: model.ValidationType(c.validationType),
		Options:        opts,
		PollInterval:   c.rootCmd.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("could not run %s validation: %w", c.validationType, err)
	}

	if err := ws.persist(ctx, c.workspaceID); err != nil {
		return err
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintResult(model.ValidationType(c.validationType), *result); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	return nil
}

// parseDataSpecs parses KEY=VALUE specs, repeated keys become lists.
func parseDataSpecs(specs []string) (map[string]any, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	data := map[string]any{}
	for _, spec := range specs {
		key, value, ok := strings.Cut(spec, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data %q, must be KEY=VALUE: %w", spec, model.ErrNotValid)
		}

		switch prev := data[key].(type) {
		case nil:
			data[key] = value
		case string:
			data[key] = []any{prev, value}
		case []any:
			data[key] = append(prev, value)
		}
	}

	return data, nil
}

package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/valtask/internal/model"
)

// TablePrinter prints validation information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintReport prints the batch state and the validations of a workspace.
func (t *TablePrinter) PrintReport(report model.WorkspaceReport) error {
	b := report.Batch
	fmt.Fprintf(t.writer, "Workspace:  %d\n", report.WorkspaceID)
	fmt.Fprintf(t.writer, "Batch:      %s\n", b.Status)

	if b.RunID != "" {
		fmt.Fprintf(t.writer, "Run:        %s\n", b.RunID)
	}
	if b.CurrentStep != "" {
		fmt.Fprintf(t.writer, "Step:       %s\n", b.CurrentStep)
	}
	if b.StartedAt != nil {
		fmt.Fprintf(t.writer, "Started:    %s\n", FormatTimestamp(*b.StartedAt))
	}
	if b.FinishedAt != nil {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(*b.FinishedAt))
		fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(b.StartedAt, b.FinishedAt))
	}
	if b.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", b.Error)
	}
	fmt.Fprintln(t.writer)

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "VALIDATION\tRESULT\tRUNNING\tVALIDATED")
	for _, v := range report.Validations {
		running := "-"
		if v.Running {
			running = fmt.Sprintf("task %d", v.TaskID)
		}
		validated := "-"
		if v.Timestamp != nil {
			validated = FormatTimestamp(*v.Timestamp)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ValidationType, v.Status, running, validated)
	}

	return nil
}

// PrintWorkspaces prints the batch summary of multiple workspaces.
func (t *TablePrinter) PrintWorkspaces(reports []model.WorkspaceReport) error {
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "WORKSPACE\tBATCH\tPASSED\tFAILED\tFINISHED")
	for _, r := range reports {
		var passed, failed int
		for _, v := range r.Validations {
			switch v.Status {
			case model.ResultStatusSuccess:
				passed++
			case model.ResultStatusFailed:
				failed++
			}
		}

		finished := "-"
		if r.Batch.FinishedAt != nil {
			finished = FormatTimestamp(*r.Batch.FinishedAt)
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", r.WorkspaceID, r.Batch.Status, passed, failed, finished)
	}

	return nil
}

// PrintResult prints the result of a single validation.
func (t *TablePrinter) PrintResult(vt model.ValidationType, result model.ValidationResult) error {
	fmt.Fprintf(t.writer, "Validation: %s\n", vt)
	fmt.Fprintf(t.writer, "Result:     %s\n", result.Status)
	fmt.Fprintf(t.writer, "Validated:  %s\n", FormatTimestamp(result.Timestamp))
	return nil
}

// PrintRaw prints a raw task result.
func (t *TablePrinter) PrintRaw(raw model.RawResult) error {
	_, err := fmt.Fprintln(t.writer, string(raw))
	return err
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, msg)
	return err
}

package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/valtask/internal/model"
)

// JSONPrinter prints validation information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

type batchOutput struct {
	Status      string     `json:"status"`
	RunID       string     `json:"run_id,omitempty"`
	CurrentStep string     `json:"current_step,omitempty"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Error       string     `json:"error,omitempty"`
}

type validationOutput struct {
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Running     bool            `json:"running"`
	TaskID      int64           `json:"task_id,omitempty"`
	ValidatedAt *time.Time      `json:"validated_at"`
	Details     json.RawMessage `json:"details,omitempty"`
}

type reportOutput struct {
	WorkspaceID int64              `json:"workspace_id"`
	Batch       batchOutput        `json:"batch"`
	Validations []validationOutput `json:"validations"`
}

type messageOutput struct {
	Message string `json:"message"`
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// PrintReport prints the workspace report in JSON format.
func (j *JSONPrinter) PrintReport(report model.WorkspaceReport) error {
	return j.encode(toReportOutput(report))
}

// PrintWorkspaces prints multiple workspace reports as a JSON array.
func (j *JSONPrinter) PrintWorkspaces(reports []model.WorkspaceReport) error {
	output := make([]reportOutput, 0, len(reports))
	for _, r := range reports {
		output = append(output, toReportOutput(r))
	}

	return j.encode(output)
}

func toReportOutput(report model.WorkspaceReport) reportOutput {
	output := reportOutput{
		WorkspaceID: report.WorkspaceID,
		Batch: batchOutput{
			Status:      string(report.Batch.Status),
			RunID:       report.Batch.RunID,
			CurrentStep: string(report.Batch.CurrentStep),
			StartedAt:   utc(report.Batch.StartedAt),
			FinishedAt:  utc(report.Batch.FinishedAt),
			Error:       report.Batch.Error,
		},
		Validations: make([]validationOutput, 0, len(report.Validations)),
	}

	for _, v := range report.Validations {
		output.Validations = append(output.Validations, validationOutput{
			Type:        string(v.ValidationType),
			Status:      string(v.Status),
			Running:     v.Running,
			TaskID:      v.TaskID,
			ValidatedAt: utc(v.Timestamp),
			Details:     v.Details,
		})
	}

	return output
}

// PrintResult prints the result of a single validation in JSON format.
func (j *JSONPrinter) PrintResult(vt model.ValidationType, result model.ValidationResult) error {
	return j.encode(validationOutput{
		Type:        string(vt),
		Status:      string(result.Status),
		ValidatedAt: utc(&result.Timestamp),
		Details:     result.Details,
	})
}

// PrintRaw prints a raw task result.
func (j *JSONPrinter) PrintRaw(raw model.RawResult) error {
	return j.encode(raw)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

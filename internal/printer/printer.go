package printer

import "github.com/slok/valtask/internal/model"

// Printer knows how to print validation information in different formats.
type Printer interface {
	PrintReport(report model.WorkspaceReport) error
	PrintWorkspaces(reports []model.WorkspaceReport) error
	PrintResult(vt model.ValidationType, result model.ValidationResult) error
	PrintRaw(raw model.RawResult) error
	PrintMessage(msg string) error
}

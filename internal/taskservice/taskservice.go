package taskservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/slok/valtask/internal/model"
)

// Service is the remote service that runs validation tasks.
type Service interface {
	CreateTask(ctx context.Context, workspaceID int64, vt model.ValidationType, opts model.TaskOptions) (*model.Task, error)
	GetTask(ctx context.Context, workspaceID, taskID int64) (*model.Task, error)
	GetTaskResults(ctx context.Context, workspaceID, taskID int64) (model.RawResult, error)
	CreateDeleteResponsesTask(ctx context.Context, workspaceID int64, responseIDs []int64) (*model.Task, error)
	CreateDeleteAllResponsesTask(ctx context.Context, workspaceID int64, vt model.ValidationType) (*model.Task, error)
}

//go:generate mockery --case underscore --output taskservicemock --outpkg taskservicemock --name Service

// FlattenAdditionalData converts task additional data into plain string values.
// Slices are joined with commas, everything else is stringified.
func FlattenAdditionalData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}

	res := make(map[string]string, len(data))
	for k, v := range data {
		res[k] = flattenValue(v)
	}

	return res
}

func flattenValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []string:
		return strings.Join(tv, ",")
	case []any:
		parts := make([]string, 0, len(tv))
		for _, p := range tv {
			parts = append(parts, flattenValue(p))
		}
		return strings.Join(parts, ",")
	case []int:
		return joinNumbers(tv)
	case []int64:
		return joinNumbers(tv)
	case []float64:
		return joinNumbers(tv)
	}

	return fmt.Sprint(v)
}

func joinNumbers[T int | int64 | float64](ns []T) string {
	parts := make([]string, 0, len(ns))
	for _, n := range ns {
		parts = append(parts, fmt.Sprint(n))
	}
	return strings.Join(parts, ",")
}

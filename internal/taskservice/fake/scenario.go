package fake

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/valtask/internal/model"
)

// Scenario scripts how the fake service resolves tasks.
type Scenario struct {
	// Polls is the number of polls a task needs to finish, 1 by default.
	Polls int `yaml:"polls"`
	// Validations are the per validation type outcomes, unset types pass.
	Validations map[model.ValidationType]Outcome `yaml:"validations"`
}

// Outcome is how the tasks of a validation type end.
type Outcome struct {
	Polls int `yaml:"polls"`
	// Error makes the task end as failed with this message.
	Error string `yaml:"error"`
	// Failed makes the task end as failed without message.
	Failed bool `yaml:"failed"`
	// CreateError makes the task creation fail.
	CreateError string `yaml:"create_error"`
	// Result is the task results payload.
	Result any `yaml:"result"`
}

func (s Scenario) validate() error {
	if s.Polls < 0 {
		return fmt.Errorf("polls can't be negative")
	}
	for vt, o := range s.Validations {
		if err := vt.Validate(); err != nil {
			return err
		}
		if o.Polls < 0 {
			return fmt.Errorf("%s polls can't be negative", vt)
		}
	}
	return nil
}

// ScenarioYAMLRepository loads fake task service scenarios from YAML files.
type ScenarioYAMLRepository struct {
	fs fs.FS
}

// NewScenarioYAMLRepository creates a new YAML scenario repository.
func NewScenarioYAMLRepository(filesystem fs.FS) *ScenarioYAMLRepository {
	return &ScenarioYAMLRepository{fs: filesystem}
}

// GetScenario loads a scenario from a YAML file.
func (r *ScenarioYAMLRepository) GetScenario(ctx context.Context, path string) (*Scenario, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w: %w", err, model.ErrNotValid)
	}

	return &s, nil
}

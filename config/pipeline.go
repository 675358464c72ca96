package config

import "fmt"

// PipelineConfig is the per-pipeline configuration document.
//
// Boolean fields that distinguish "explicitly false" from "not set" are
// pointers; a nil pointer lets a lower-precedence layer supply the value.
type PipelineConfig struct {
	Name        string           `yaml:"name" mapstructure:"name"`
	Params      map[string]any   `yaml:"params" mapstructure:"params"`
	FinalVars   []string         `yaml:"final_vars" mapstructure:"final_vars"`
	Executor    ExecutorSelector `yaml:"executor" mapstructure:"executor"`
	Adapters    AdapterToggles   `yaml:"adapters" mapstructure:"adapters"`
	Cache       *bool            `yaml:"cache" mapstructure:"cache"`
	Schedule    string           `yaml:"schedule" mapstructure:"schedule"`
	WithModules []string         `yaml:"with_modules" mapstructure:"with_modules"`
}

// AdapterToggles enables observability adapters for a run.
type AdapterToggles struct {
	Logging *bool `yaml:"logging" mapstructure:"logging"`
	Tracker *bool `yaml:"tracker" mapstructure:"tracker"`
	Tracing *bool `yaml:"tracing" mapstructure:"tracing"`
}

// Validate validates the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.Executor.Type != "" && c.Executor.Type != ExecutorSequential && c.Executor.Type != ExecutorConcurrent {
		return fmt.Errorf("executor.type must be %q or %q (got: %s)",
			ExecutorSequential, ExecutorConcurrent, c.Executor.Type)
	}
	if c.Executor.MaxWorkers < 0 {
		return fmt.Errorf("executor.max_workers must not be negative (got: %d)", c.Executor.MaxWorkers)
	}
	return nil
}

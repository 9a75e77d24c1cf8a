// Package config defines the YAML batch-file format and its validation.
package config

import "time"

// BatchFile is the top-level YAML document driving one batch run.
type BatchFile struct {
	LogLevel  string         `yaml:"log_level"`
	Water     WaterSpec      `yaml:"water"`
	Reagents  []ReagentSpec  `yaml:"reagents"`
	Model     *ModelSpec     `yaml:"model,omitempty"`
	Executor  ExecutorSpec   `yaml:"executor"`
	Defaults  DefaultsSpec   `yaml:"defaults"`
	Scenarios []ScenarioSpec `yaml:"scenarios"`
}

// WaterSpec is the base water composition scenarios start from.
type WaterSpec struct {
	TemperatureC float64            `yaml:"temperature_c"`
	PH           float64            `yaml:"ph"`
	Components   map[string]float64 `yaml:"components,omitempty"`
}

// ReagentSpec declares one dosable reagent and its bounds.
type ReagentSpec struct {
	Formula string  `yaml:"formula"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Step    float64 `yaml:"step,omitempty"`
	Unit    string  `yaml:"unit,omitempty"`
}

// ModelSpec configures the built-in response-surface evaluator used for dry
// runs. Absent a model, the batch needs an external solver wired in by the
// caller.
type ModelSpec struct {
	Base      map[string]float64                 `yaml:"base"`
	Responses map[string]map[string]ResponseSpec `yaml:"responses"`
}

// ResponseSpec is one reagent's effect on one parameter.
type ResponseSpec struct {
	Slope      float64 `yaml:"slope"`
	Saturation float64 `yaml:"saturation,omitempty"`
}

// ExecutorSpec configures the batch worker pool and the evaluator wrappers.
type ExecutorSpec struct {
	ParallelLimit int    `yaml:"parallel_limit,omitempty"`
	Timeout       string `yaml:"timeout,omitempty"` // e.g. "30s"; empty means none
	PoolSize      int    `yaml:"pool_size,omitempty"`
	// RateLimit caps evaluator calls per second; 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	Memoize   bool    `yaml:"memoize,omitempty"`
}

// GetTimeout parses the timeout string; an empty string means no timeout.
func (e ExecutorSpec) GetTimeout() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(e.Timeout)
}

// DefaultsSpec carries the numeric knobs shared by every scenario.
type DefaultsSpec struct {
	MaxIterations    int   `yaml:"max_iterations,omitempty"`
	MaxExpansions    int   `yaml:"max_expansions,omitempty"`
	GridResolution   int   `yaml:"grid_resolution,omitempty"`
	EvalCap          int   `yaml:"eval_cap,omitempty"`
	MaxCombinations  int   `yaml:"max_combinations,omitempty"`
	Parallelism      int   `yaml:"parallelism,omitempty"`
	RefinementRounds int   `yaml:"refinement_rounds,omitempty"`
	Passes           int   `yaml:"passes,omitempty"`
	Seed             int64 `yaml:"seed,omitempty"`
}

// ScenarioSpec is one named unit of batch work. Exactly one of the payload
// blocks must be present.
type ScenarioSpec struct {
	Name     string        `yaml:"name"`
	Eval     *EvalSpec     `yaml:"eval,omitempty"`
	Search   *SearchSpec   `yaml:"search,omitempty"`
	Optimize *OptimizeSpec `yaml:"optimize,omitempty"`
}

// EvalSpec evaluates a fixed dose list against the base water.
type EvalSpec struct {
	Doses []DoseSpec `yaml:"doses"`
}

// DoseSpec is one reagent addition.
type DoseSpec struct {
	Formula string  `yaml:"formula"`
	Amount  float64 `yaml:"amount"`
	Unit    string  `yaml:"unit,omitempty"`
}

// SearchSpec runs a single-target dose search over one declared reagent.
type SearchSpec struct {
	Reagent     string     `yaml:"reagent"`
	Target      TargetSpec `yaml:"target"`
	SeedBracket bool       `yaml:"seed_bracket,omitempty"`
}

// TargetSpec is the water-quality goal of a search.
type TargetSpec struct {
	Parameter string  `yaml:"parameter"`
	Value     float64 `yaml:"value"`
	Tolerance float64 `yaml:"tolerance"`
}

// OptimizeSpec runs a multi-objective optimization over declared reagents.
type OptimizeSpec struct {
	Strategy      string             `yaml:"strategy"`
	Reagents      []string           `yaml:"reagents"`
	Objectives    []ObjectiveSpec    `yaml:"objectives"`
	SampleSize    int                `yaml:"sample_size,omitempty"`
	Perturbations []PerturbationSpec `yaml:"perturbations,omitempty"`
}

// ObjectiveSpec is one weighted water-quality objective.
type ObjectiveSpec struct {
	Parameter string  `yaml:"parameter"`
	Target    float64 `yaml:"target"`
	Tolerance float64 `yaml:"tolerance"`
	Weight    float64 `yaml:"weight"`
}

// PerturbationSpec is one robust-optimization scenario: an alternate
// assumed base water.
type PerturbationSpec struct {
	Name  string    `yaml:"name"`
	Water WaterSpec `yaml:"water"`
}

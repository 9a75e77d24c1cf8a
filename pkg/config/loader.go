package config

import (
	"fmt"
	"os"
)

// LoadBatch loads and parses a batch file
func LoadBatch(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", path, err)
	}
	batch, err := ParseBatchYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}
	return batch, nil
}

// validStrategies enumerates the optimization strategies a batch file may
// name.
var validStrategies = map[string]bool{
	"grid":         true,
	"weighted_sum": true,
	"pareto":       true,
	"sequential":   true,
	"robust":       true,
}

// validateBatch performs validation on the batch file
func validateBatch(b *BatchFile) error {
	// Validate log level
	if b.LogLevel != "" {
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLogLevels[b.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", b.LogLevel)
		}
	}

	// Validate reagents
	reagentNames := make(map[string]bool)
	for _, r := range b.Reagents {
		if r.Formula == "" {
			return fmt.Errorf("reagent formula cannot be empty")
		}
		if reagentNames[r.Formula] {
			return fmt.Errorf("duplicate reagent formula: %s", r.Formula)
		}
		reagentNames[r.Formula] = true
		if r.Min < 0 {
			return fmt.Errorf("reagent %s: min cannot be negative", r.Formula)
		}
		if r.Max < r.Min {
			return fmt.Errorf("reagent %s: max must be >= min", r.Formula)
		}
		if r.Step < 0 {
			return fmt.Errorf("reagent %s: step cannot be negative", r.Formula)
		}
	}

	// Validate executor settings
	if b.Executor.ParallelLimit < 0 {
		return fmt.Errorf("executor parallel_limit cannot be negative, got %d", b.Executor.ParallelLimit)
	}
	if b.Executor.PoolSize < 0 {
		return fmt.Errorf("executor pool_size cannot be negative, got %d", b.Executor.PoolSize)
	}
	if b.Executor.RateLimit < 0 {
		return fmt.Errorf("executor rate_limit cannot be negative, got %f", b.Executor.RateLimit)
	}
	if _, err := b.Executor.GetTimeout(); err != nil {
		return fmt.Errorf("invalid executor timeout %s: %w", b.Executor.Timeout, err)
	}

	// Validate scenarios
	if len(b.Scenarios) == 0 {
		return fmt.Errorf("at least one scenario must be defined")
	}
	scenarioNames := make(map[string]bool)
	for _, s := range b.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("scenario name cannot be empty")
		}
		if scenarioNames[s.Name] {
			return fmt.Errorf("duplicate scenario name: %s", s.Name)
		}
		scenarioNames[s.Name] = true

		if err := validateScenario(s, reagentNames); err != nil {
			return fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}

	return nil
}

// validateScenario checks one scenario's payload against the declared
// reagents.
func validateScenario(s ScenarioSpec, reagentNames map[string]bool) error {
	payloads := 0
	if s.Eval != nil {
		payloads++
	}
	if s.Search != nil {
		payloads++
	}
	if s.Optimize != nil {
		payloads++
	}
	if payloads != 1 {
		return fmt.Errorf("exactly one of eval, search or optimize must be set")
	}

	switch {
	case s.Eval != nil:
		for _, d := range s.Eval.Doses {
			if d.Formula == "" {
				return fmt.Errorf("dose formula cannot be empty")
			}
			if d.Amount < 0 {
				return fmt.Errorf("dose %s: amount cannot be negative", d.Formula)
			}
		}

	case s.Search != nil:
		if !reagentNames[s.Search.Reagent] {
			return fmt.Errorf("search references unknown reagent: %s", s.Search.Reagent)
		}
		if s.Search.Target.Parameter == "" {
			return fmt.Errorf("search target parameter cannot be empty")
		}
		if s.Search.Target.Tolerance <= 0 {
			return fmt.Errorf("search target tolerance must be positive, got %f", s.Search.Target.Tolerance)
		}

	case s.Optimize != nil:
		if !validStrategies[s.Optimize.Strategy] {
			return fmt.Errorf("invalid strategy: %s (must be grid, weighted_sum, pareto, sequential, or robust)", s.Optimize.Strategy)
		}
		if len(s.Optimize.Reagents) == 0 {
			return fmt.Errorf("optimize needs at least one reagent")
		}
		for _, name := range s.Optimize.Reagents {
			if !reagentNames[name] {
				return fmt.Errorf("optimize references unknown reagent: %s", name)
			}
		}
		if len(s.Optimize.Objectives) == 0 {
			return fmt.Errorf("optimize needs at least one objective")
		}
		for _, obj := range s.Optimize.Objectives {
			if obj.Parameter == "" {
				return fmt.Errorf("objective parameter cannot be empty")
			}
			if obj.Tolerance <= 0 {
				return fmt.Errorf("objective %s: tolerance must be positive", obj.Parameter)
			}
			if obj.Weight < 0 || obj.Weight > 1 {
				return fmt.Errorf("objective %s: weight must be between 0 and 1, got %f", obj.Parameter, obj.Weight)
			}
		}
		if s.Optimize.Strategy == "robust" && len(s.Optimize.Perturbations) == 0 {
			return fmt.Errorf("robust strategy needs at least one perturbation")
		}
		for _, p := range s.Optimize.Perturbations {
			if p.Name == "" {
				return fmt.Errorf("perturbation name cannot be empty")
			}
		}
	}

	return nil
}

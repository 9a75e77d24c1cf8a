// Package batch runs many independent dosing scenarios through a bounded
// worker pool and collects an ordered report. A failing scenario never
// affects its siblings.
package batch

import (
	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/internal/optimize"
	"github.com/aquatics-lab/dosing-core/internal/search"
)

// EvalSpec evaluates one fixed recipe with no search on top.
type EvalSpec struct {
	Recipe chem.Recipe
}

// SearchSpec runs a single-target dose search.
type SearchSpec struct {
	Template chem.Recipe
	Reagent  chem.Reagent
	Target   search.Target
	Options  search.Options
}

// OptimizeSpec runs a multi-objective optimization.
type OptimizeSpec struct {
	Template   chem.Recipe
	Reagents   []chem.Reagent
	Objectives []optimize.Objective
	Strategy   optimize.Strategy
	Options    optimize.Options
}

// Scenario is one named unit of batch work carrying exactly one payload.
type Scenario struct {
	Name     string
	Eval     *EvalSpec
	Search   *SearchSpec
	Optimize *OptimizeSpec
}

// Validate checks the scenario has a name and exactly one payload.
func (s Scenario) Validate() error {
	if s.Name == "" {
		return &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: "scenario name cannot be empty"}
	}
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
		return &chem.EvaluationError{
			Kind:    chem.KindInvalidInput,
			Formula: s.Name,
			Msg:     "scenario must carry exactly one of eval, search or optimize",
		}
	}
	return nil
}

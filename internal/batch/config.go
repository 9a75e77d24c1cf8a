package batch

import (
	"fmt"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/internal/optimize"
	"github.com/aquatics-lab/dosing-core/internal/search"
	"github.com/aquatics-lab/dosing-core/pkg/config"
)

// strategyNames maps batch-file strategy strings to optimizer strategies.
var strategyNames = map[string]optimize.Strategy{
	"grid":         optimize.StrategyGrid,
	"weighted_sum": optimize.StrategyWeightedSum,
	"pareto":       optimize.StrategyPareto,
	"sequential":   optimize.StrategySequential,
	"robust":       optimize.StrategyRobust,
}

// BuildWater converts a water spec to the domain type.
func BuildWater(spec config.WaterSpec) chem.Water {
	water := chem.Water{
		TemperatureC: spec.TemperatureC,
		PH:           spec.PH,
	}
	if len(spec.Components) > 0 {
		water.Components = make(map[string]float64, len(spec.Components))
		for k, v := range spec.Components {
			water.Components[k] = v
		}
	}
	return water
}

// BuildReagent converts a reagent spec to the domain type.
func BuildReagent(spec config.ReagentSpec) chem.Reagent {
	return chem.Reagent{
		Formula: spec.Formula,
		Min:     spec.Min,
		Max:     spec.Max,
		Step:    spec.Step,
		Unit:    spec.Unit,
	}
}

// BuildEvaluator constructs the evaluator stack a batch file asks for:
// the built-in response-surface model, optionally behind an instance pool,
// a rate limiter and a memo cache, innermost first.
func BuildEvaluator(b *config.BatchFile) (chem.Evaluator, error) {
	if b.Model == nil {
		return nil, fmt.Errorf("batch file declares no model; an external solver must be wired in by the caller")
	}

	buildModel := func() *chem.ModelEvaluator {
		m := chem.NewModelEvaluator()
		for param, value := range b.Model.Base {
			m.SetBase(param, value)
		}
		for formula, responses := range b.Model.Responses {
			for param, resp := range responses {
				m.SetResponse(formula, param, chem.Response{
					Slope:      resp.Slope,
					Saturation: resp.Saturation,
				})
			}
		}
		return m
	}

	var eval chem.Evaluator = buildModel()
	if b.Executor.PoolSize > 0 {
		pool, err := chem.NewPool(func() (chem.Engine, error) {
			return buildModel(), nil
		}, b.Executor.PoolSize)
		if err != nil {
			return nil, fmt.Errorf("build evaluator pool: %w", err)
		}
		eval = pool
	}
	if b.Executor.RateLimit > 0 {
		eval = chem.NewLimited(eval, b.Executor.RateLimit, 1)
	}
	if b.Executor.Memoize {
		eval = chem.NewMemo(eval)
	}
	return eval, nil
}

// BuildOptions converts the executor spec, applying the default parallel
// limit when the file leaves it unset.
func BuildOptions(b *config.BatchFile) (Options, error) {
	timeout, err := b.Executor.GetTimeout()
	if err != nil {
		return Options{}, fmt.Errorf("executor timeout: %w", err)
	}
	limit := b.Executor.ParallelLimit
	if limit == 0 {
		limit = DefaultParallelLimit
	}
	return Options{ParallelLimit: limit, Timeout: timeout}, nil
}

// BuildScenarios converts every scenario spec into executable scenarios
// sharing the file's base water and defaults.
func BuildScenarios(b *config.BatchFile) ([]Scenario, error) {
	water := BuildWater(b.Water)
	template := chem.NewRecipe(water)

	byFormula := make(map[string]chem.Reagent, len(b.Reagents))
	for _, spec := range b.Reagents {
		byFormula[spec.Formula] = BuildReagent(spec)
	}

	scenarios := make([]Scenario, 0, len(b.Scenarios))
	for _, spec := range b.Scenarios {
		sc := Scenario{Name: spec.Name}
		switch {
		case spec.Eval != nil:
			doses := make([]chem.Dose, len(spec.Eval.Doses))
			for i, d := range spec.Eval.Doses {
				unit := d.Unit
				if unit == "" {
					unit = "mg/L"
				}
				doses[i] = chem.Dose{Formula: d.Formula, Amount: d.Amount, Unit: unit}
			}
			sc.Eval = &EvalSpec{Recipe: template.WithDoses(doses)}

		case spec.Search != nil:
			reagent, ok := byFormula[spec.Search.Reagent]
			if !ok {
				return nil, fmt.Errorf("scenario %s: unknown reagent %s", spec.Name, spec.Search.Reagent)
			}
			sc.Search = &SearchSpec{
				Template: template,
				Reagent:  reagent,
				Target: search.Target{
					Parameter: spec.Search.Target.Parameter,
					Value:     spec.Search.Target.Value,
					Tolerance: spec.Search.Target.Tolerance,
				},
				Options: search.Options{
					MaxIterations: b.Defaults.MaxIterations,
					MaxExpansions: b.Defaults.MaxExpansions,
					SeedBracket:   spec.Search.SeedBracket,
					Seed:          b.Defaults.Seed,
				},
			}

		case spec.Optimize != nil:
			strategy, ok := strategyNames[spec.Optimize.Strategy]
			if !ok {
				return nil, fmt.Errorf("scenario %s: unknown strategy %s", spec.Name, spec.Optimize.Strategy)
			}
			reagents := make([]chem.Reagent, len(spec.Optimize.Reagents))
			for i, name := range spec.Optimize.Reagents {
				reagent, ok := byFormula[name]
				if !ok {
					return nil, fmt.Errorf("scenario %s: unknown reagent %s", spec.Name, name)
				}
				reagents[i] = reagent
			}
			objectives := make([]optimize.Objective, len(spec.Optimize.Objectives))
			for i, obj := range spec.Optimize.Objectives {
				objectives[i] = optimize.Objective{
					Parameter: obj.Parameter,
					Target:    obj.Target,
					Tolerance: obj.Tolerance,
					Weight:    obj.Weight,
				}
			}
			perturbations := make([]optimize.Perturbation, len(spec.Optimize.Perturbations))
			for i, p := range spec.Optimize.Perturbations {
				perturbations[i] = optimize.Perturbation{Name: p.Name, Water: BuildWater(p.Water)}
			}
			sc.Optimize = &OptimizeSpec{
				Template:   template,
				Reagents:   reagents,
				Objectives: objectives,
				Strategy:   strategy,
				Options: optimize.Options{
					GridResolution:   b.Defaults.GridResolution,
					EvalCap:          b.Defaults.EvalCap,
					MaxCombinations:  b.Defaults.MaxCombinations,
					Parallelism:      b.Defaults.Parallelism,
					RefinementRounds: b.Defaults.RefinementRounds,
					Passes:           b.Defaults.Passes,
					SampleSize:       spec.Optimize.SampleSize,
					Seed:             b.Defaults.Seed,
					Perturbations:    perturbations,
				},
			}
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

package optimize

import (
	"fmt"

	"github.com/aquatics-lab/dosing-core/pkg/logger"
)

// robust evaluates every candidate dose combination under every perturbation
// scenario and scores each candidate by its worst-case (maximum) weighted
// error across scenarios. The winner minimizes that worst case. Unlike every
// other strategy, the per-candidate reduction is a max, not a sum.
func (r *optRun) robust() *Result {
	res := &Result{Strategy: StrategyRobust}
	perturbations := r.o.opts.Perturbations

	axes := gridAxes(r.reagents, r.o.opts.GridResolution)
	if combinationCount(axes, r.o.opts.MaxCombinations) > r.o.opts.MaxCombinations {
		res.Outcome = OutcomeInfeasible
		res.Err = fmt.Errorf("search space too large: grid exceeds %d combinations", r.o.opts.MaxCombinations)
		return res
	}

	// Every combination costs one evaluation per scenario.
	axes, resolution, err := planAxes(r.reagents, r.o.opts.GridResolution, len(perturbations), r.o.opts.EvalCap)
	if err != nil {
		res.Outcome = OutcomeInfeasible
		res.Err = err
		return res
	}
	if resolution != r.o.opts.GridResolution {
		logger.Info("robust grid resolution reduced to honor evaluation cap",
			"requested", r.o.opts.GridResolution, "used", resolution,
			"scenarios", len(perturbations), "cap", r.o.opts.EvalCap)
	}
	res.Resolution = resolution
	combos := cartesian(axes)

	perScenario := make([][]Candidate, len(perturbations))
	for s, p := range perturbations {
		candidates, err := r.scoreAll(combos, &p.Water)
		if err != nil {
			return r.fail(res, err)
		}
		perScenario[s] = candidates
	}

	// Reduce each candidate to its worst scenario. A candidate that failed
	// under any scenario has an unknown worst case and is discarded.
	worst := make([]Candidate, len(combos))
	for i := range combos {
		candidate := Candidate{Doses: combos[i]}
		evaluated := true
		for s := range perturbations {
			c := perScenario[s][i]
			if !c.Evaluated {
				evaluated = false
				candidate.Err = c.Err
				break
			}
			if s == 0 || c.Score > candidate.Score {
				candidate.Score = c.Score
				candidate.Errors = c.Errors
				candidate.Observation = c.Observation
			}
		}
		candidate.Evaluated = evaluated
		worst[i] = candidate
	}
	res.Trials = worst
	res.Evaluations = int(r.evals.Load())

	best, ok := bestOf(worst)
	if !ok {
		return r.noneEvaluated(res, worst)
	}
	res.Best = best
	res.Outcome = OutcomeSuccess
	return res
}

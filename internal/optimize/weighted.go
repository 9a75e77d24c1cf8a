package optimize

import (
	"fmt"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/pkg/logger"
	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

// weightedSum runs the grid strategy to seed a starting point, then refines
// it with coordinate-wise bracketing on the scalarized score. The refinement
// stops when a full round improves the score by less than ScoreTolerance,
// the round budget runs out, or the evaluation cap is reached.
func (r *optRun) weightedSum() *Result {
	res := &Result{Strategy: StrategyWeightedSum}

	axes := gridAxes(r.reagents, r.o.opts.GridResolution)
	if combinationCount(axes, r.o.opts.MaxCombinations) > r.o.opts.MaxCombinations {
		res.Outcome = OutcomeInfeasible
		res.Err = fmt.Errorf("search space too large: grid exceeds %d combinations", r.o.opts.MaxCombinations)
		return res
	}

	// Reserve budget for the refinement phase: two probes per reagent per
	// round.
	reserve := 2*len(r.reagents)*r.o.opts.RefinementRounds + 1
	gridBudget := utils.Max(r.o.opts.EvalCap-reserve, len(r.reagents)+1)
	axes, resolution, err := planAxes(r.reagents, r.o.opts.GridResolution, 1, gridBudget)
	if err != nil {
		res.Outcome = OutcomeInfeasible
		res.Err = err
		return res
	}
	res.Resolution = resolution

	candidates, err := r.scoreAll(cartesian(axes), nil)
	if err != nil {
		return r.fail(res, err)
	}
	res.Trials = candidates

	seed, ok := bestOf(candidates)
	if !ok {
		return r.noneEvaluated(res, candidates)
	}

	current := *seed
	deltas := make([]float64, len(r.reagents))
	for i, axis := range axes {
		if len(axis) > 1 {
			deltas[i] = (axis[1] - axis[0]) / 2
		}
	}

	for round := 0; round < r.o.opts.RefinementRounds; round++ {
		roundStart := current.Score

		for dim, reagent := range r.reagents {
			if reagent.Degenerate() || deltas[dim] == 0 {
				continue
			}
			for _, direction := range []float64{-1, 1} {
				if int(r.evals.Load()) >= r.o.opts.EvalCap {
					logger.Debug("refinement stopped at evaluation cap", "evals", r.evals.Load())
					return r.finishWeighted(res, current)
				}
				probe := make([]float64, len(current.Doses))
				copy(probe, current.Doses)
				probe[dim] = utils.ClampFloat64(probe[dim]+direction*deltas[dim], reagent.Min, reagent.Max)
				if probe[dim] == current.Doses[dim] {
					continue
				}
				cand := r.score(probe, nil)
				if chem.KindOf(cand.Err) == chem.KindInvalidInput {
					return r.fail(res, cand.Err)
				}
				if cand.Evaluated && cand.Score < current.Score {
					current = cand
				}
			}
			deltas[dim] /= 2
		}

		if roundStart-current.Score < r.o.opts.ScoreTolerance {
			break
		}
		res.Passes = round + 1
	}

	return r.finishWeighted(res, current)
}

func (r *optRun) finishWeighted(res *Result, best Candidate) *Result {
	res.Best = &best
	res.Evaluations = int(r.evals.Load())
	res.Outcome = OutcomeSuccess
	return res
}

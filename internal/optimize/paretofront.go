package optimize

import (
	"fmt"

	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

// pareto samples the dose space — the shared grid by default, a Latin
// hypercube when requested or when the dimension makes a grid wasteful —
// and retains the non-dominated subset of per-objective error vectors.
func (r *optRun) pareto() *Result {
	res := &Result{Strategy: StrategyPareto}

	var combos [][]float64
	useLHS := r.o.opts.SampleSize > 0 || len(r.reagents) >= 3
	if useLHS {
		n := r.o.opts.SampleSize
		if n <= 0 {
			n = utils.Min(r.o.opts.EvalCap, 10*r.o.opts.GridResolution)
		}
		if n > r.o.opts.EvalCap {
			n = r.o.opts.EvalCap
		}
		combos = latinHypercube(r.reagents, n, r.rng)
	} else {
		axes := gridAxes(r.reagents, r.o.opts.GridResolution)
		if combinationCount(axes, r.o.opts.MaxCombinations) > r.o.opts.MaxCombinations {
			res.Outcome = OutcomeInfeasible
			res.Err = fmt.Errorf("search space too large: grid exceeds %d combinations", r.o.opts.MaxCombinations)
			return res
		}
		planned, resolution, err := planAxes(r.reagents, r.o.opts.GridResolution, 1, r.o.opts.EvalCap)
		if err != nil {
			res.Outcome = OutcomeInfeasible
			res.Err = err
			return res
		}
		res.Resolution = resolution
		combos = cartesian(planned)
	}

	candidates, err := r.scoreAll(combos, nil)
	if err != nil {
		return r.fail(res, err)
	}
	res.Trials = candidates

	var front ParetoSet
	for _, c := range candidates {
		if c.Evaluated {
			front.Add(c)
		}
	}
	if front.Len() == 0 {
		return r.noneEvaluated(res, candidates)
	}

	res.Front = front.Members()
	res.Evaluations = int(r.evals.Load())

	// The scalarized best of the front is reported as Best for callers
	// that want a single answer; the front itself is the deliverable.
	best := res.Front[0]
	for _, c := range res.Front[1:] {
		if c.Score < best.Score {
			best = c
		}
	}
	res.Best = &best
	res.Outcome = OutcomeSuccess
	return res
}

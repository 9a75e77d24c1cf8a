package optimize

import (
	"errors"
	"fmt"
	"math"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/pkg/logger"
	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

var errBudgetExhausted = errors.New("evaluation budget exhausted")

// sequential runs coordinate descent: reagent k is root-found alone against
// the k-th highest-weight objective while the other doses are held at their
// midpoint (first pass) or previous value. One full pass by default; with
// Passes > 1 the loop repeats until no dose shifts by more than
// DoseTolerance or the pass budget runs out.
func (r *optRun) sequential() *Result {
	res := &Result{Strategy: StrategySequential}
	order := sortIndicesByWeight(r.objectives)

	doses := make([]float64, len(r.reagents))
	for i, reagent := range r.reagents {
		doses[i] = (reagent.Min + reagent.Max) / 2
	}

	stabilized := r.o.opts.Passes == 1
	for pass := 1; pass <= r.o.opts.Passes; pass++ {
		res.Passes = pass
		maxShift := 0.0

		for k, reagent := range r.reagents {
			objective := r.objectives[order[k%len(order)]]
			next, err := r.coordinateSolve(k, doses, reagent, objective)
			if err != nil {
				if errors.Is(err, errBudgetExhausted) {
					return r.sequentialHint(res, doses, fmt.Errorf(
						"evaluation cap %d reached in pass %d", r.o.opts.EvalCap, pass))
				}
				return r.fail(res, err)
			}
			shift := math.Abs(next - doses[k])
			if shift > maxShift {
				maxShift = shift
			}
			doses[k] = next
		}

		if r.o.opts.Passes > 1 && maxShift <= r.o.opts.DoseTolerance {
			stabilized = true
			logger.Debug("sequential doses stabilized", "pass", pass, "max_shift", maxShift)
			break
		}
	}

	final := r.score(doses, nil)
	if chem.KindOf(final.Err) == chem.KindInvalidInput {
		return r.fail(res, final.Err)
	}
	if !final.Evaluated {
		return r.fail(res, final.Err)
	}

	res.Best = &final
	res.Evaluations = int(r.evals.Load())
	if !stabilized {
		res.Outcome = OutcomeConvergenceFailure
		res.Err = fmt.Errorf("doses did not stabilize within %d passes", r.o.opts.Passes)
		return res
	}
	res.Outcome = OutcomeSuccess
	return res
}

// coordinateSolve root-finds one reagent's dose against one objective with
// every other dose held fixed, using the same endpoint-bracket + bisection
// primitive the single-target search is built on. When the objective's
// target is not bracketed by the reagent's bounds, the better endpoint wins:
// coordinate descent minimizes error, it does not insist on a root.
func (r *optRun) coordinateSolve(dim int, doses []float64, reagent chem.Reagent, objective Objective) (float64, error) {
	if reagent.Degenerate() {
		return reagent.Min, nil
	}

	probe := func(d float64) (float64, error) {
		if int(r.evals.Load()) >= r.o.opts.EvalCap {
			return 0, errBudgetExhausted
		}
		trial := make([]float64, len(doses))
		copy(trial, doses)
		trial[dim] = d
		obs, err := r.evalDoses(trial, nil)
		if err != nil {
			return 0, err
		}
		value, ok := obs.Value(objective.Parameter)
		if !ok {
			return 0, &chem.EvaluationError{
				Kind: chem.KindInvalidInput,
				Msg:  fmt.Sprintf("evaluator did not report objective parameter %q", objective.Parameter),
			}
		}
		return value - objective.Target, nil
	}

	errLo, err := probe(reagent.Min)
	if err != nil {
		return 0, err
	}
	if math.Abs(errLo) <= objective.Tolerance {
		return reagent.Min, nil
	}
	errHi, err := probe(reagent.Max)
	if err != nil {
		return 0, err
	}
	if math.Abs(errHi) <= objective.Tolerance {
		return reagent.Max, nil
	}

	if utils.SameSign(errLo, errHi) {
		// Target unreachable along this coordinate; keep the endpoint
		// closest to it.
		if math.Abs(errLo) <= math.Abs(errHi) {
			return reagent.Min, nil
		}
		return reagent.Max, nil
	}

	lo, hi := reagent.Min, reagent.Max
	bestDose, bestErr := lo, math.Abs(errLo)
	if math.Abs(errHi) < bestErr {
		bestDose, bestErr = hi, math.Abs(errHi)
	}
	for i := 0; i < coordinateIterations; i++ {
		mid := (lo + hi) / 2
		errMid, err := probe(mid)
		if err != nil {
			return 0, err
		}
		if math.Abs(errMid) < bestErr {
			bestDose, bestErr = mid, math.Abs(errMid)
		}
		if math.Abs(errMid) <= objective.Tolerance {
			return mid, nil
		}
		if utils.SameSign(errMid, errLo) {
			lo, errLo = mid, errMid
		} else {
			hi = mid
		}
	}
	return bestDose, nil
}

const coordinateIterations = 16

// sequentialHint finalizes a budget-exhausted run with the best doses so
// far, clearly non-authoritative.
func (r *optRun) sequentialHint(res *Result, doses []float64, cause error) *Result {
	res.Evaluations = int(r.evals.Load())
	res.Outcome = OutcomeConvergenceFailure
	res.Err = cause
	res.Best = &Candidate{Doses: doses}
	return res
}

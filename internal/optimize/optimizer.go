// Package optimize searches multi-reagent dose combinations against several
// weighted water-quality objectives. Strategies share one evaluator budget
// and one scoring rule; each multi-dimensional trial is a single evaluator
// call.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/pkg/logger"
	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

// Strategy selects the optimization algorithm.
type Strategy string

const (
	// StrategyGrid exhaustively scores a dose grid.
	StrategyGrid Strategy = "grid"
	// StrategyWeightedSum refines a grid seed with coordinate-wise
	// bracketing on the scalarized score.
	StrategyWeightedSum Strategy = "weighted_sum"
	// StrategyPareto retains the non-dominated subset of sampled candidates.
	StrategyPareto Strategy = "pareto"
	// StrategySequential runs coordinate descent, one reagent against one
	// objective at a time.
	StrategySequential Strategy = "sequential"
	// StrategyRobust minimizes the worst-case weighted error across
	// perturbation scenarios.
	StrategyRobust Strategy = "robust"
)

// Outcome tags an optimization result.
type Outcome string

const (
	// OutcomeSuccess means a best candidate (or front) was produced.
	OutcomeSuccess Outcome = "success"
	// OutcomeInfeasible means the request provably cannot be served
	// (search space too large, unreachable configuration).
	OutcomeInfeasible Outcome = "infeasible"
	// OutcomeConvergenceFailure means a budget ran out before the strategy
	// stabilized; Best is a non-authoritative hint.
	OutcomeConvergenceFailure Outcome = "convergence_failure"
	// OutcomeEvaluatorError means every trial failed in the evaluator.
	OutcomeEvaluatorError Outcome = "evaluator_error"
)

// Candidate is one evaluated dose combination.
type Candidate struct {
	Doses       []float64
	Observation *chem.Observation
	Errors      []float64 // tolerance-normalized per-objective errors
	Score       float64   // scalarized weighted score
	Evaluated   bool
	Err         error
}

// Perturbation is one robust-optimization scenario: an alternate assumed
// base water.
type Perturbation struct {
	Name  string
	Water chem.Water
}

// Options configures an optimizer.
type Options struct {
	GridResolution   int     // points per reagent axis; default 10
	EvalCap          int     // hard cap on evaluator calls per run; default 2000
	MaxCombinations  int     // reject larger grids as infeasible; default 4096
	Parallelism      int     // concurrent grid-cell evaluations; default 1
	RefinementRounds int     // weighted-sum coordinate rounds; default 3
	ScoreTolerance   float64 // stop refining below this improvement; default 1e-3
	Passes           int     // sequential passes; default 1
	DoseTolerance    float64 // sequential stabilization threshold; default 1e-3
	SampleSize       int     // Latin-hypercube sample size for pareto; 0 -> grid
	Seed             int64   // sampling seed
	Perturbations    []Perturbation
}

const (
	defaultGridResolution   = 10
	defaultEvalCap          = 2000
	defaultMaxCombinations  = 4096
	defaultRefinementRounds = 3
	defaultScoreTolerance   = 1e-3
	defaultDoseTolerance    = 1e-3
)

func (o Options) withDefaults() Options {
	if o.GridResolution <= 0 {
		o.GridResolution = defaultGridResolution
	}
	if o.EvalCap <= 0 {
		o.EvalCap = defaultEvalCap
	}
	if o.MaxCombinations <= 0 {
		o.MaxCombinations = defaultMaxCombinations
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.RefinementRounds <= 0 {
		o.RefinementRounds = defaultRefinementRounds
	}
	if o.ScoreTolerance <= 0 {
		o.ScoreTolerance = defaultScoreTolerance
	}
	if o.Passes <= 0 {
		o.Passes = 1
	}
	if o.DoseTolerance <= 0 {
		o.DoseTolerance = defaultDoseTolerance
	}
	return o
}

// Result is the outcome of one optimization run.
type Result struct {
	Strategy    Strategy
	Outcome     Outcome
	Best        *Candidate
	Trials      []Candidate // full scored set for grid-backed strategies
	Front       []Candidate // pareto strategy only
	Resolution  int         // grid resolution actually used after budget reduction
	Evaluations int
	Passes      int
	Err         error
}

// Optimizer runs multi-objective dose optimizations against one evaluator.
type Optimizer struct {
	eval chem.Evaluator
	opts Options
}

// New creates an optimizer with the given options.
func New(eval chem.Evaluator, opts Options) *Optimizer {
	return &Optimizer{eval: eval, opts: opts.withDefaults()}
}

// Optimize runs the selected strategy. Configuration errors return a plain
// error; numerical and evaluator failures surface through the tagged Result.
func (o *Optimizer) Optimize(ctx context.Context, template chem.Recipe, reagents []chem.Reagent, objectives []Objective, strategy Strategy) (*Result, error) {
	if len(reagents) == 0 {
		return nil, &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: "at least one reagent is required"}
	}
	if len(objectives) == 0 {
		return nil, &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: "at least one objective is required"}
	}
	for _, r := range reagents {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	for _, obj := range objectives {
		if err := obj.Validate(); err != nil {
			return nil, err
		}
	}

	run := &optRun{
		o:          o,
		ctx:        ctx,
		template:   template,
		reagents:   reagents,
		objectives: objectives,
		weights:    normalizeWeights(objectives),
		rng:        utils.NewRandSource(o.opts.Seed),
	}

	switch strategy {
	case StrategyGrid:
		return run.grid(), nil
	case StrategyWeightedSum:
		return run.weightedSum(), nil
	case StrategyPareto:
		return run.pareto(), nil
	case StrategySequential:
		return run.sequential(), nil
	case StrategyRobust:
		if len(o.opts.Perturbations) == 0 {
			return nil, &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: "robust strategy requires at least one perturbation scenario"}
		}
		return run.robust(), nil
	default:
		return nil, &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: fmt.Sprintf("unknown strategy %q", strategy)}
	}
}

// optRun carries one optimization's shared state.
type optRun struct {
	o          *Optimizer
	ctx        context.Context
	template   chem.Recipe
	reagents   []chem.Reagent
	objectives []Objective
	weights    []float64
	rng        *utils.RandSource
	evals      atomic.Int64
}

// evalDoses performs one evaluator call for a dose vector, applying doses in
// reagent order. A non-nil water overrides the template's base composition
// (robust scenarios).
func (r *optRun) evalDoses(doses []float64, water *chem.Water) (*chem.Observation, error) {
	template := r.template
	if water != nil {
		template = chem.Recipe{Water: *water, Doses: r.template.Doses}
	}
	doseList := make([]chem.Dose, len(doses))
	for i, d := range doses {
		unit := r.reagents[i].Unit
		if unit == "" {
			unit = "mg/L"
		}
		doseList[i] = chem.Dose{Formula: r.reagents[i].Formula, Amount: d, Unit: unit}
	}
	r.evals.Add(1)
	return r.o.eval.Evaluate(r.ctx, template.WithDoses(doseList))
}

// score evaluates one dose vector into a candidate against the run's
// objectives.
func (r *optRun) score(doses []float64, water *chem.Water) Candidate {
	c := Candidate{Doses: doses}
	obs, err := r.evalDoses(doses, water)
	if err != nil {
		c.Err = err
		return c
	}
	errs, err := errorVector(obs, r.objectives)
	if err != nil {
		c.Err = err
		return c
	}
	c.Observation = obs
	c.Errors = errs
	c.Score = weightedScore(errs, r.weights)
	c.Evaluated = true
	return c
}

// scoreAll evaluates a candidate set under a bounded-parallel loop. At most
// Parallelism evaluations run concurrently; the evaluator's own pool caps
// aggregate in-flight calls across runs. Results keep input order. An
// invalid-input failure from any cell aborts the whole set: it is a caller
// error, not a trial failure.
func (r *optRun) scoreAll(combos [][]float64, water *chem.Water) ([]Candidate, error) {
	candidates := make([]Candidate, len(combos))

	if r.o.opts.Parallelism <= 1 {
		for i, doses := range combos {
			candidates[i] = r.score(doses, water)
			if chem.KindOf(candidates[i].Err) == chem.KindInvalidInput {
				return nil, candidates[i].Err
			}
		}
		return candidates, nil
	}

	semaphore := make(chan struct{}, r.o.opts.Parallelism)
	var wg sync.WaitGroup
	for i, doses := range combos {
		wg.Add(1)
		go func(idx int, d []float64) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			candidates[idx] = r.score(d, water)
		}(i, doses)
	}
	wg.Wait()

	for _, c := range candidates {
		if chem.KindOf(c.Err) == chem.KindInvalidInput {
			return nil, c.Err
		}
	}
	return candidates, nil
}

// bestOf selects the minimum-score evaluated candidate. Ties keep the
// earliest candidate to stay deterministic.
func bestOf(candidates []Candidate) (*Candidate, bool) {
	var best *Candidate
	for i := range candidates {
		if !candidates[i].Evaluated {
			continue
		}
		if best == nil || candidates[i].Score < best.Score {
			best = &candidates[i]
		}
	}
	if best == nil {
		return nil, false
	}
	out := *best
	return &out, true
}

// grid runs the exhaustive grid strategy: score every combination of the
// discretized dose space and return the minimum plus the full scored grid.
func (r *optRun) grid() *Result {
	res := &Result{Strategy: StrategyGrid}

	axes := gridAxes(r.reagents, r.o.opts.GridResolution)
	if combinationCount(axes, r.o.opts.MaxCombinations) > r.o.opts.MaxCombinations {
		res.Outcome = OutcomeInfeasible
		res.Err = fmt.Errorf("search space too large: grid exceeds %d combinations", r.o.opts.MaxCombinations)
		return res
	}

	axes, resolution, err := planAxes(r.reagents, r.o.opts.GridResolution, 1, r.o.opts.EvalCap)
	if err != nil {
		res.Outcome = OutcomeInfeasible
		res.Err = err
		return res
	}
	if resolution != r.o.opts.GridResolution {
		logger.Info("grid resolution reduced to honor evaluation cap",
			"requested", r.o.opts.GridResolution, "used", resolution, "cap", r.o.opts.EvalCap)
	}
	res.Resolution = resolution

	candidates, err := r.scoreAll(cartesian(axes), nil)
	if err != nil {
		return r.fail(res, err)
	}
	res.Trials = candidates
	res.Evaluations = int(r.evals.Load())

	best, ok := bestOf(candidates)
	if !ok {
		return r.noneEvaluated(res, candidates)
	}
	res.Best = best
	res.Outcome = OutcomeSuccess
	return res
}

// fail finalizes a result for a hard error.
func (r *optRun) fail(res *Result, err error) *Result {
	res.Evaluations = int(r.evals.Load())
	res.Err = err
	if chem.KindOf(err) == chem.KindInvalidInput {
		res.Outcome = OutcomeInfeasible
	} else {
		res.Outcome = OutcomeEvaluatorError
	}
	return res
}

// noneEvaluated finalizes a result when every trial failed in the evaluator.
func (r *optRun) noneEvaluated(res *Result, candidates []Candidate) *Result {
	res.Evaluations = int(r.evals.Load())
	res.Outcome = OutcomeEvaluatorError
	for _, c := range candidates {
		if c.Err != nil {
			res.Err = fmt.Errorf("no candidate could be evaluated: %w", c.Err)
			break
		}
	}
	if res.Err == nil {
		res.Err = errors.New("no candidate could be evaluated")
	}
	return res
}

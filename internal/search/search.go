// Package search root-finds a single reagent's dose against one target
// water-quality parameter, driving an expensive and possibly ill-behaved
// evaluator with a bracketing secant/bisection hybrid.
package search

import (
	"context"
	"fmt"
	"math"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/pkg/logger"
	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

// Target is the water-quality objective of one search: drive Parameter to
// Value within Tolerance.
type Target struct {
	Parameter string
	Value     float64
	Tolerance float64
}

// Validate checks the target is usable.
func (t Target) Validate() error {
	if t.Parameter == "" {
		return &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: "target parameter cannot be empty"}
	}
	if t.Tolerance <= 0 {
		return &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: "target tolerance must be positive"}
	}
	return nil
}

// Outcome tags a search result so callers can branch without inspecting
// messages.
type Outcome string

const (
	// OutcomeSuccess means a dose within tolerance was found.
	OutcomeSuccess Outcome = "success"
	// OutcomeInfeasible means the target provably lies outside the range
	// achievable within the reagent's bounds.
	OutcomeInfeasible Outcome = "infeasible"
	// OutcomeConvergenceFailure means the iteration budget ran out or the
	// response was too ill-behaved to bracket; the result carries a
	// non-authoritative best-found hint.
	OutcomeConvergenceFailure Outcome = "convergence_failure"
	// OutcomeEvaluatorError means the evaluator failed unrecoverably.
	OutcomeEvaluatorError Outcome = "evaluator_error"
)

// Options configures a search run.
type Options struct {
	MaxIterations int   // iteration budget; default 30
	MaxExpansions int   // bracket expansion budget; default 5
	SeedBracket   bool  // start from a midpoint bracket and expand outward
	Seed          int64 // seed for retry perturbation; 0 means time-seeded
}

const (
	defaultMaxIterations = 30
	defaultMaxExpansions = 5
)

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
	if o.MaxExpansions <= 0 {
		o.MaxExpansions = defaultMaxExpansions
	}
	return o
}

// Result is the outcome of one search run.
type Result struct {
	Outcome     Outcome
	Dose        float64
	Observed    float64
	Observation *chem.Observation
	Iterations  int
	Evaluations int
	// Hint is the best-found sample when the search did not succeed.
	// Non-authoritative: it did not meet tolerance.
	Hint *Sample
	Err  error
}

// Searcher runs single-target dose searches against one evaluator.
type Searcher struct {
	eval chem.Evaluator
	opts Options
	rng  *utils.RandSource
}

// NewSearcher creates a searcher with the given options.
func NewSearcher(eval chem.Evaluator, opts Options) *Searcher {
	opts = opts.withDefaults()
	return &Searcher{
		eval: eval,
		opts: opts,
		rng:  utils.NewRandSource(opts.Seed),
	}
}

// Search finds a dose of reagent in [Min, Max], added to the template
// recipe, that brings the target parameter within tolerance of its target
// value. Configuration errors return a plain error; evaluator and numerical
// failures are reported through the tagged Result.
func (s *Searcher) Search(ctx context.Context, template chem.Recipe, reagent chem.Reagent, target Target) (*Result, error) {
	if err := reagent.Validate(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	run := &searchRun{
		searcher: s,
		ctx:      ctx,
		template: template,
		reagent:  reagent,
		target:   target,
		state:    NewConvergenceState(),
	}
	return run.execute(), nil
}

// searchRun carries the per-run state so the loop methods stay small.
type searchRun struct {
	searcher *Searcher
	ctx      context.Context
	template chem.Recipe
	reagent  chem.Reagent
	target   Target

	state   *ConvergenceState
	evals   int
	lastObs *chem.Observation
}

func (r *searchRun) execute() *Result {
	if r.reagent.Degenerate() {
		return r.degenerate()
	}

	res := r.establishBracket()
	if res != nil {
		return res
	}
	return r.iterate()
}

// degenerate handles min == max: one evaluation, success iff within
// tolerance, infeasible otherwise.
func (r *searchRun) degenerate() *Result {
	sample, obs, err := r.evalAt(r.reagent.Min)
	if err != nil {
		return r.failure(OutcomeEvaluatorError, err)
	}
	if utils.ApproxEqual(sample.Observed, r.target.Value, r.target.Tolerance) {
		return r.success(sample, obs)
	}
	return r.failure(OutcomeInfeasible, fmt.Errorf(
		"degenerate bounds: %s at dose %g gives %s=%g, target %g±%g",
		r.reagent.Formula, sample.Dose, r.target.Parameter, sample.Observed, r.target.Value, r.target.Tolerance))
}

// establishBracket evaluates the endpoints and, when seeded from a midpoint,
// expands geometrically until the target is straddled. Returns a terminal
// Result or nil when a bracket is in place.
func (r *searchRun) establishBracket() *Result {
	lo, obsLo, err := r.evalAt(r.reagent.Min)
	if err != nil {
		return r.failure(OutcomeEvaluatorError, err)
	}
	if r.withinTolerance(lo) {
		return r.success(lo, obsLo)
	}

	hiDose := r.reagent.Max
	if r.searcher.opts.SeedBracket {
		hiDose = r.reagent.Min + (r.reagent.Max-r.reagent.Min)/2
	}
	hi, obsHi, err := r.evalAt(hiDose)
	if err != nil {
		return r.failure(OutcomeEvaluatorError, err)
	}
	if r.withinTolerance(hi) {
		return r.success(hi, obsHi)
	}

	expansions := 0
	for utils.SameSign(lo.Observed-r.target.Value, hi.Observed-r.target.Value) {
		if hi.Dose >= r.reagent.Max {
			// The full dose range has been spanned and the target still
			// lies on one side of it.
			return r.failure(OutcomeInfeasible, fmt.Errorf(
				"target %s=%g outside range [%g, %g] achievable with %s doses [%g, %g]",
				r.target.Parameter, r.target.Value,
				math.Min(lo.Observed, hi.Observed), math.Max(lo.Observed, hi.Observed),
				r.reagent.Formula, r.reagent.Min, r.reagent.Max))
		}
		if expansions >= r.searcher.opts.MaxExpansions {
			r.state.Status = StatusDiverged
			return r.failure(OutcomeConvergenceFailure, fmt.Errorf(
				"no bracket after %d expansions", expansions))
		}
		expansions++

		// Double the bracket width from the fixed lower endpoint, capped
		// at the reagent's max dose.
		next := lo.Dose + 2*(hi.Dose-lo.Dose)
		if next > r.reagent.Max {
			next = r.reagent.Max
		}
		expanded, obs, err := r.evalAt(next)
		if err != nil {
			return r.failure(OutcomeEvaluatorError, err)
		}
		if r.withinTolerance(expanded) {
			return r.success(expanded, obs)
		}
		lo, hi = hi, expanded
	}

	r.state.Lo, r.state.Hi = lo, hi
	return nil
}

// iterate runs the secant/bisection hybrid until tolerance, budget
// exhaustion, or an unrecoverable failure.
func (r *searchRun) iterate() *Result {
	forceBisect := false

	for r.state.Iterations < r.searcher.opts.MaxIterations {
		r.state.Iterations++

		trial := r.trialDose(forceBisect)
		sample, obs, err := r.evalAt(trial)
		if err != nil {
			return r.failure(OutcomeEvaluatorError, err)
		}
		if r.withinTolerance(sample) {
			return r.success(sample, obs)
		}

		if !forceBisect && r.state.Oscillating() {
			logger.Debug("non-monotonic response detected, falling back to bisection",
				"reagent", r.reagent.Formula, "parameter", r.target.Parameter,
				"iteration", r.state.Iterations)
			forceBisect = true
		}

		if forceBisect {
			// The running bracket cannot be trusted under oscillation;
			// re-derive the narrowest sub-interval still consistent with
			// the target from everything sampled so far.
			lo, hi, ok := r.state.ConsistentSubInterval(r.target.Value)
			if !ok {
				return r.failure(OutcomeConvergenceFailure, fmt.Errorf(
					"response is non-monotonic and no sampled sub-interval straddles %s=%g",
					r.target.Parameter, r.target.Value))
			}
			r.state.Lo, r.state.Hi = lo, hi
			continue
		}

		if utils.SameSign(sample.Observed-r.target.Value, r.state.Lo.Observed-r.target.Value) {
			r.state.Lo = sample
		} else {
			r.state.Hi = sample
		}
		// A perturbed retry can land outside the bracket; keep the
		// endpoints ordered.
		if r.state.Lo.Dose > r.state.Hi.Dose {
			r.state.Lo, r.state.Hi = r.state.Hi, r.state.Lo
		}
	}

	return r.failure(OutcomeConvergenceFailure, fmt.Errorf(
		"no convergence within %d iterations", r.searcher.opts.MaxIterations))
}

// trialDose proposes the next dose: secant interpolation when it lands
// strictly inside the bracket at a fresh dose, bisection otherwise.
func (r *searchRun) trialDose(forceBisect bool) float64 {
	lo, hi := r.state.Lo, r.state.Hi
	mid := (lo.Dose + hi.Dose) / 2
	if forceBisect {
		return mid
	}

	errLo := lo.Observed - r.target.Value
	errHi := hi.Observed - r.target.Value
	denom := errHi - errLo
	if denom == 0 {
		return mid
	}
	secant := hi.Dose - errHi*(hi.Dose-lo.Dose)/denom

	eps := (hi.Dose - lo.Dose) * 1e-9
	if secant <= lo.Dose || secant >= hi.Dose || r.state.Tried(secant, eps) {
		return mid
	}
	return secant
}

// evalAt evaluates one trial dose. Transient solver failures (crash,
// timeout) are retried once at a dose perturbed by up to 1% of the bracket
// width; invalid input is never retried.
func (r *searchRun) evalAt(dose float64) (Sample, *chem.Observation, error) {
	recipe := r.template.WithDose(r.reagent.Formula, dose, r.unit())
	obs, err := r.searcher.eval.Evaluate(r.ctx, recipe)
	r.evals++

	if err != nil && chem.Retryable(err) {
		width := r.reagent.Max - r.reagent.Min
		perturbed := utils.ClampFloat64(dose+r.searcher.rng.Jitter(0.01*width), r.reagent.Min, r.reagent.Max)
		logger.Debug("retrying transient evaluator failure with perturbed dose",
			"reagent", r.reagent.Formula, "dose", dose, "perturbed", perturbed, "kind", chem.KindOf(err))
		obs, err = r.searcher.eval.Evaluate(r.ctx, r.template.WithDose(r.reagent.Formula, perturbed, r.unit()))
		r.evals++
		if err == nil {
			dose = perturbed
		}
	}
	if err != nil {
		r.state.Status = StatusEvaluatorFailed
		return Sample{}, nil, err
	}

	observed, ok := obs.Value(r.target.Parameter)
	if !ok {
		r.state.Status = StatusEvaluatorFailed
		return Sample{}, nil, &chem.EvaluationError{
			Kind: chem.KindInvalidInput,
			Msg:  fmt.Sprintf("evaluator did not report target parameter %q", r.target.Parameter),
		}
	}

	sample := Sample{Dose: dose, Observed: observed}
	r.state.Record(sample)
	r.lastObs = obs
	return sample, obs, nil
}

func (r *searchRun) withinTolerance(sample Sample) bool {
	return utils.ApproxEqual(sample.Observed, r.target.Value, r.target.Tolerance)
}

func (r *searchRun) unit() string {
	if r.reagent.Unit != "" {
		return r.reagent.Unit
	}
	return "mg/L"
}

func (r *searchRun) success(sample Sample, obs *chem.Observation) *Result {
	r.state.Status = StatusConverged
	return &Result{
		Outcome:     OutcomeSuccess,
		Dose:        sample.Dose,
		Observed:    sample.Observed,
		Observation: obs,
		Iterations:  r.state.Iterations,
		Evaluations: r.evals,
	}
}

func (r *searchRun) failure(outcome Outcome, err error) *Result {
	if r.state.Status == StatusSearching {
		switch outcome {
		case OutcomeEvaluatorError:
			r.state.Status = StatusEvaluatorFailed
		case OutcomeConvergenceFailure:
			r.state.Status = StatusDiverged
		}
	}
	res := &Result{
		Outcome:     outcome,
		Iterations:  r.state.Iterations,
		Evaluations: r.evals,
		Err:         err,
	}
	if best, ok := r.state.Best(r.target.Value); ok {
		res.Hint = &best
	}
	return res
}

package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/internal/optimize"
	"github.com/aquatics-lab/dosing-core/internal/search"
	"github.com/aquatics-lab/dosing-core/pkg/logger"
)

// Status tags one scenario's outcome inside a batch.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusInfeasible         Status = "infeasible"
	StatusConvergenceFailure Status = "convergence_failure"
	StatusEvaluatorError     Status = "evaluator_error"
	// StatusTimeout marks scenarios cancelled by the batch deadline.
	StatusTimeout Status = "timeout"
)

// DefaultParallelLimit is the worker-pool size used when configuration does
// not supply one.
const DefaultParallelLimit = 10

// Options configures a batch run.
type Options struct {
	// ParallelLimit bounds concurrently running scenarios. Must be
	// positive; RunBatch rejects the batch otherwise.
	ParallelLimit int
	// Timeout, when positive, bounds the whole batch. Scenarios still
	// pending at the deadline are reported with StatusTimeout.
	Timeout time.Duration
}

// ScenarioResult is one scenario's slot in the batch report.
type ScenarioResult struct {
	Name     string
	Status   Status
	Err      error
	Duration time.Duration

	// Exactly one of the following is set, matching the scenario payload.
	Observation *chem.Observation
	Search      *search.Result
	Optimize    *optimize.Result
}

// Executor runs batches of scenarios against one shared evaluator. The
// parallel limit caps both scenario-level fan-out and, through an evaluator
// gate, aggregate in-flight evaluator calls across the whole batch.
type Executor struct {
	eval chem.Evaluator
	opts Options
}

// gate caps aggregate in-flight evaluator calls. The scenario semaphore
// alone is not enough: optimizer strategies fan out grid cells on their own
// workers, so without the gate a batch could reach ParallelLimit times the
// optimizer's parallelism. Every evaluation funnels through here.
type gate struct {
	inner chem.Evaluator
	slots chan struct{}
}

func newGate(inner chem.Evaluator, limit int) *gate {
	return &gate{inner: inner, slots: make(chan struct{}, limit)}
}

func (g *gate) Evaluate(ctx context.Context, recipe chem.Recipe) (*chem.Observation, error) {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, &chem.EvaluationError{
			Kind: chem.KindTimeout,
			Msg:  "evaluation cancelled while waiting for an in-flight slot",
			Err:  ctx.Err(),
		}
	}
	defer func() { <-g.slots }()
	return g.inner.Evaluate(ctx, recipe)
}

// NewExecutor creates a batch executor.
func NewExecutor(eval chem.Evaluator, opts Options) *Executor {
	return &Executor{eval: eval, opts: opts}
}

// RunBatch executes every scenario under the worker pool and returns the
// report with results in input order. Configuration problems — a
// non-positive parallel limit, duplicate or invalid scenarios — fail the
// whole batch before any work starts. Individual scenario failures do not:
// each lands in its own result slot.
func (e *Executor) RunBatch(ctx context.Context, scenarios []Scenario) (*BatchReport, error) {
	if e.opts.ParallelLimit <= 0 {
		return nil, &chem.EvaluationError{
			Kind: chem.KindInvalidInput,
			Msg:  fmt.Sprintf("parallel limit must be positive, got %d", e.opts.ParallelLimit),
		}
	}
	seen := make(map[string]struct{}, len(scenarios))
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[s.Name]; dup {
			return nil, &chem.EvaluationError{
				Kind:    chem.KindInvalidInput,
				Formula: s.Name,
				Msg:     "duplicate scenario name",
			}
		}
		seen[s.Name] = struct{}{}
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	started := time.Now()
	logger.Info("batch started", "scenarios", len(scenarios), "parallel_limit", e.opts.ParallelLimit)

	results := make([]ScenarioResult, len(scenarios))
	gated := newGate(e.eval, e.opts.ParallelLimit)
	semaphore := make(chan struct{}, e.opts.ParallelLimit)
	var wg sync.WaitGroup
	for i, scenario := range scenarios {
		wg.Add(1)
		go func(idx int, sc Scenario) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			results[idx] = e.runScenario(ctx, gated, sc)
		}(i, scenario)
	}
	wg.Wait()

	report := newReport(results, started, time.Now())
	logger.Info("batch finished", "batch_id", report.ID,
		"succeeded", report.Succeeded(), "failed", report.Failed(),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// runScenario dispatches one scenario and maps its outcome to a status. A
// scenario that fails because the batch deadline expired is tagged timeout
// regardless of how the failure surfaced.
func (e *Executor) runScenario(ctx context.Context, eval chem.Evaluator, sc Scenario) ScenarioResult {
	res := ScenarioResult{Name: sc.Name}
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
	}()

	if ctx.Err() != nil {
		res.Status = StatusTimeout
		res.Err = ctx.Err()
		return res
	}

	switch {
	case sc.Eval != nil:
		obs, err := eval.Evaluate(ctx, sc.Eval.Recipe)
		if err != nil {
			res.Status = statusForError(ctx, err)
			res.Err = err
			return res
		}
		res.Observation = obs
		res.Status = StatusSuccess

	case sc.Search != nil:
		searcher := search.NewSearcher(eval, sc.Search.Options)
		out, err := searcher.Search(ctx, sc.Search.Template, sc.Search.Reagent, sc.Search.Target)
		if err != nil {
			res.Status = statusForError(ctx, err)
			res.Err = err
			return res
		}
		res.Search = out
		res.Status = statusForOutcome(ctx, string(out.Outcome), out.Err)
		res.Err = out.Err

	case sc.Optimize != nil:
		opt := optimize.New(eval, sc.Optimize.Options)
		out, err := opt.Optimize(ctx, sc.Optimize.Template, sc.Optimize.Reagents,
			sc.Optimize.Objectives, sc.Optimize.Strategy)
		if err != nil {
			res.Status = statusForError(ctx, err)
			res.Err = err
			return res
		}
		res.Optimize = out
		res.Status = statusForOutcome(ctx, string(out.Outcome), out.Err)
		res.Err = out.Err
	}
	return res
}

// statusForError maps a hard error to a status, preferring timeout when the
// batch context has expired.
func statusForError(ctx context.Context, err error) Status {
	if ctx.Err() != nil {
		return StatusTimeout
	}
	switch chem.KindOf(err) {
	case chem.KindInvalidInput:
		return StatusInfeasible
	case chem.KindTimeout:
		return StatusTimeout
	default:
		return StatusEvaluatorError
	}
}

// statusForOutcome maps a search or optimization outcome tag. The tags share
// the executor's vocabulary, so the mapping is a cast plus the deadline
// check.
func statusForOutcome(ctx context.Context, outcome string, cause error) Status {
	if ctx.Err() != nil && outcome != string(StatusSuccess) {
		return StatusTimeout
	}
	if cause != nil && chem.KindOf(cause) == chem.KindTimeout {
		return StatusTimeout
	}
	return Status(outcome)
}

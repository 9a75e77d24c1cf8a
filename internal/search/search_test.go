package search

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/aquatics-lab/dosing-core/internal/chem"
)

// linearEvaluator responds with value = base + slope*dose for the target
// parameter, counting evaluations.
func linearEvaluator(parameter string, base, slope float64, calls *atomic.Int32) chem.Evaluator {
	return chem.EvaluatorFunc(func(ctx context.Context, recipe chem.Recipe) (*chem.Observation, error) {
		if calls != nil {
			calls.Add(1)
		}
		dose := 0.0
		if len(recipe.Doses) > 0 {
			dose = recipe.Doses[len(recipe.Doses)-1].Amount
		}
		return &chem.Observation{
			Values:    map[string]float64{parameter: base + slope*dose},
			Converged: true,
		}, nil
	})
}

func template() chem.Recipe {
	return chem.NewRecipe(chem.Water{PH: 6.8, Components: map[string]float64{"Ca": 80}})
}

func TestSearchLinearResponse(t *testing.T) {
	// f(dose) = 6.8 + 0.5*dose, target pH 8.5 => dose* = 3.4.
	s := NewSearcher(linearEvaluator("pH", 6.8, 0.5, nil), Options{})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Outcome, res.Err)
	}
	if math.Abs(res.Dose-3.4) > 0.01 {
		t.Errorf("dose = %f, want 3.40 +/- 0.01", res.Dose)
	}
	if math.Abs(res.Observed-8.5) > 0.01 {
		t.Errorf("observed = %f, want 8.5 +/- 0.01", res.Observed)
	}
}

func TestSearchIterationBoundOnMonotonicResponse(t *testing.T) {
	// Bisection's worst-case bound: ceil(log2(range/doseTol)) plus a small
	// constant. With secant acceleration the hybrid must do no worse.
	var calls atomic.Int32
	s := NewSearcher(linearEvaluator("hardness", 50, 2, &calls), Options{})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "lime", Min: 0, Max: 100},
		Target{Parameter: "hardness", Value: 130, Tolerance: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", res.Outcome)
	}

	doseTol := 0.5 / 2 // tolerance in dose space for slope 2
	bound := int(math.Ceil(math.Log2(100/doseTol))) + 3
	if res.Iterations > bound {
		t.Errorf("took %d iterations, worst-case bound is %d", res.Iterations, bound)
	}
}

func TestSearchOscillatingResponseNeverFalseSuccess(t *testing.T) {
	// A response oscillating across the whole bracket, never entering the
	// tolerance band: must end in convergence failure, not success.
	eval := chem.EvaluatorFunc(func(ctx context.Context, recipe chem.Recipe) (*chem.Observation, error) {
		dose := recipe.Doses[len(recipe.Doses)-1].Amount
		var value float64
		switch dose {
		case 0:
			value = 7 // endpoints straddle the target so a bracket exists
		case 10:
			value = 10
		default:
			value = 8.5 + 1.5*math.Sin(40*dose)
			if math.Abs(value-8.5) < 0.1 {
				value = 8.7 // interior samples never enter the tolerance band
			}
		}
		return &chem.Observation{Values: map[string]float64{"pH": value}, Converged: true}, nil
	})
	s := NewSearcher(eval, Options{MaxIterations: 20})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Outcome == OutcomeSuccess {
		t.Fatalf("false success on oscillating response: %+v", res)
	}
	if res.Outcome != OutcomeConvergenceFailure {
		t.Errorf("expected convergence_failure, got %s", res.Outcome)
	}
	if res.Hint == nil {
		t.Error("expected a best-found hint on convergence failure")
	}
}

func TestSearchDegenerateBounds(t *testing.T) {
	var calls atomic.Int32
	s := NewSearcher(linearEvaluator("pH", 6.8, 0.5, &calls), Options{})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 0},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Outcome != OutcomeInfeasible {
		t.Errorf("expected infeasible, got %s", res.Outcome)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single evaluation, got %d", calls.Load())
	}

	// Degenerate bounds that happen to satisfy the target succeed.
	res, err = s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 3.4, Max: 3.4},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("expected success at the single achievable dose, got %s", res.Outcome)
	}
}

func TestSearchInfeasibleTarget(t *testing.T) {
	s := NewSearcher(linearEvaluator("pH", 6.8, 0.5, nil), Options{})

	// Max achievable pH at dose 10 is 11.8; 12.5 is out of reach.
	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 12.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Outcome != OutcomeInfeasible {
		t.Errorf("expected infeasible, got %s", res.Outcome)
	}
}

func TestSearchInvalidInputAbortsImmediately(t *testing.T) {
	var calls atomic.Int32
	eval := chem.EvaluatorFunc(func(ctx context.Context, recipe chem.Recipe) (*chem.Observation, error) {
		calls.Add(1)
		return nil, &chem.EvaluationError{Kind: chem.KindInvalidInput, Formula: "NaOH", Msg: "unknown formula"}
	})
	s := NewSearcher(eval, Options{})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Outcome != OutcomeEvaluatorError {
		t.Fatalf("expected evaluator_error, got %s", res.Outcome)
	}
	if calls.Load() != 1 {
		t.Errorf("invalid input must not be retried, saw %d calls", calls.Load())
	}
}

func TestSearchTransientFailureRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	eval := chem.EvaluatorFunc(func(ctx context.Context, recipe chem.Recipe) (*chem.Observation, error) {
		if calls.Add(1) == 1 {
			return nil, &chem.EvaluationError{Kind: chem.KindSolverCrash, Msg: "flaky"}
		}
		dose := recipe.Doses[len(recipe.Doses)-1].Amount
		return &chem.Observation{Values: map[string]float64{"pH": 6.8 + 0.5*dose}, Converged: true}, nil
	})
	s := NewSearcher(eval, Options{Seed: 1})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected recovery from a single transient failure, got %s (%v)", res.Outcome, res.Err)
	}
}

func TestSearchPersistentCrashFails(t *testing.T) {
	eval := chem.EvaluatorFunc(func(ctx context.Context, recipe chem.Recipe) (*chem.Observation, error) {
		return nil, &chem.EvaluationError{Kind: chem.KindSolverCrash, Msg: "engine keeps dying"}
	})
	s := NewSearcher(eval, Options{Seed: 1})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeEvaluatorError {
		t.Errorf("expected evaluator_error, got %s", res.Outcome)
	}
	if chem.KindOf(res.Err) != chem.KindSolverCrash {
		t.Errorf("expected solver_crash cause, got %s", chem.KindOf(res.Err))
	}
}

func TestSearchConfigurationErrors(t *testing.T) {
	s := NewSearcher(linearEvaluator("pH", 6.8, 0.5, nil), Options{})

	_, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if chem.KindOf(err) != chem.KindInvalidInput {
		t.Errorf("expected invalid_input for empty formula, got %v", err)
	}

	_, err = s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0})
	if chem.KindOf(err) != chem.KindInvalidInput {
		t.Errorf("expected invalid_input for zero tolerance, got %v", err)
	}
}

func TestSearchSeededBracketExpansion(t *testing.T) {
	s := NewSearcher(linearEvaluator("pH", 6.8, 0.1, nil), Options{SeedBracket: true})

	// Root at dose 17: the seeded bracket [0, 10] must expand to reach it.
	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 20},
		Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success after expansion, got %s (%v)", res.Outcome, res.Err)
	}
	if math.Abs(res.Dose-17) > 0.2 {
		t.Errorf("dose = %f, want ~17", res.Dose)
	}
}

func TestSearchIdempotent(t *testing.T) {
	run := func() *Result {
		s := NewSearcher(linearEvaluator("pH", 6.8, 0.5, nil), Options{Seed: 42})
		res, err := s.Search(context.Background(), template(),
			chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
			Target{Parameter: "pH", Value: 8.5, Tolerance: 0.01})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res
	}

	r1, r2 := run(), run()
	if r1.Dose != r2.Dose || r1.Observed != r2.Observed || r1.Iterations != r2.Iterations {
		t.Errorf("expected bit-identical reruns, got %+v vs %+v", r1, r2)
	}
}

func TestSearchMissingParameter(t *testing.T) {
	eval := chem.EvaluatorFunc(func(ctx context.Context, recipe chem.Recipe) (*chem.Observation, error) {
		return &chem.Observation{Values: map[string]float64{"pH": 7}, Converged: true}, nil
	})
	s := NewSearcher(eval, Options{})

	res, err := s.Search(context.Background(), template(),
		chem.Reagent{Formula: "NaOH", Min: 0, Max: 10},
		Target{Parameter: "SI_Calcite", Value: 0, Tolerance: 0.05})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeEvaluatorError {
		t.Fatalf("expected evaluator_error, got %s", res.Outcome)
	}
	if chem.KindOf(res.Err) != chem.KindInvalidInput {
		t.Errorf("expected invalid_input cause, got %s", chem.KindOf(res.Err))
	}
}

package chem

import "context"

// Response is one reagent's effect on one water-quality parameter in the
// built-in response-surface model: linear in dose, optionally saturating at
// high doses.
type Response struct {
	Slope      float64
	Saturation float64 // half-saturation dose; 0 means purely linear
}

// ModelEvaluator is a deterministic, in-process evaluator backed by a simple
// additive response surface instead of a full equilibrium engine. It exists
// so the CLI can dry-run a batch end to end without an external solver, and
// so tests have a well-behaved reference response. It is not a chemistry
// model.
type ModelEvaluator struct {
	// Base holds each parameter's value at zero dose. When "pH" is absent
	// the recipe's base water pH is used.
	Base map[string]float64
	// Responses maps reagent formula -> parameter -> response.
	Responses map[string]map[string]Response
}

// NewModelEvaluator creates an empty response-surface evaluator.
func NewModelEvaluator() *ModelEvaluator {
	return &ModelEvaluator{
		Base:      make(map[string]float64),
		Responses: make(map[string]map[string]Response),
	}
}

// SetBase sets a parameter's zero-dose value.
func (m *ModelEvaluator) SetBase(parameter string, value float64) *ModelEvaluator {
	m.Base[parameter] = value
	return m
}

// SetResponse sets a reagent's effect on a parameter.
func (m *ModelEvaluator) SetResponse(formula, parameter string, resp Response) *ModelEvaluator {
	if m.Responses[formula] == nil {
		m.Responses[formula] = make(map[string]Response)
	}
	m.Responses[formula][parameter] = resp
	return m
}

// Evaluate computes the response surface for the recipe. Recipes dosing a
// formula the model does not know fail with an invalid-input error, matching
// how a real engine rejects an unrecognized mineral.
func (m *ModelEvaluator) Evaluate(ctx context.Context, recipe Recipe) (*Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, &EvaluationError{Kind: KindTimeout, Msg: "evaluation cancelled", Err: err}
	}

	values := make(map[string]float64, len(m.Base)+1)
	for parameter, base := range m.Base {
		values[parameter] = base
	}
	if _, ok := values["pH"]; !ok && recipe.Water.PH != 0 {
		values["pH"] = recipe.Water.PH
	}

	for _, dose := range recipe.Doses {
		responses, ok := m.Responses[dose.Formula]
		if !ok {
			return nil, &EvaluationError{
				Kind:    KindInvalidInput,
				Formula: dose.Formula,
				Msg:     "unrecognized reagent formula",
			}
		}
		for parameter, resp := range responses {
			values[parameter] += resp.apply(dose.Amount)
		}
	}

	return &Observation{Values: values, Converged: true, Iterations: 1}, nil
}

// Solve implements Engine so a ModelEvaluator can stand in for a pooled
// engine instance.
func (m *ModelEvaluator) Solve(ctx context.Context, recipe Recipe) (*Observation, error) {
	return m.Evaluate(ctx, recipe)
}

func (r Response) apply(dose float64) float64 {
	if r.Saturation <= 0 {
		return r.Slope * dose
	}
	return r.Slope * dose / (1 + dose/r.Saturation)
}

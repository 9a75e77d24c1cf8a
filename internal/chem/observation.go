package chem

// Observation is the evaluator's reported state for one recipe: parameter
// values (pH, saturation indices, residuals, ...) plus solver metadata.
// Observations are owned by the call that produced them and never mutated.
type Observation struct {
	Values     map[string]float64
	Converged  bool
	Iterations int
}

// Value returns the named parameter and whether the evaluator reported it.
func (o *Observation) Value(parameter string) (float64, bool) {
	v, ok := o.Values[parameter]
	return v, ok
}

// Reagent identifies one dosable chemical and its search bounds.
type Reagent struct {
	Formula string
	Min     float64
	Max     float64
	Unit    string
	Step    float64 // optional fixed grid resolution; 0 means unset
}

// Validate checks the reagent's bounds are usable for a search.
func (r Reagent) Validate() error {
	if r.Formula == "" {
		return &EvaluationError{Kind: KindInvalidInput, Msg: "reagent formula cannot be empty"}
	}
	if r.Max < r.Min {
		return &EvaluationError{
			Kind:    KindInvalidInput,
			Formula: r.Formula,
			Msg:     "reagent max dose is below min dose",
		}
	}
	if r.Min < 0 {
		return &EvaluationError{
			Kind:    KindInvalidInput,
			Formula: r.Formula,
			Msg:     "reagent min dose cannot be negative",
		}
	}
	if r.Step < 0 {
		return &EvaluationError{
			Kind:    KindInvalidInput,
			Formula: r.Formula,
			Msg:     "reagent step cannot be negative",
		}
	}
	return nil
}

// Degenerate reports whether the bounds collapse to a single dose.
func (r Reagent) Degenerate() bool {
	return r.Min == r.Max
}

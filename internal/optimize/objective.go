package optimize

import (
	"fmt"

	"github.com/aquatics-lab/dosing-core/internal/chem"
)

// Objective is one weighted water-quality goal: drive Parameter to Target
// within Tolerance. Weight is relative in [0, 1]; weights across one
// optimization need not sum to 1, they are normalized internally.
type Objective struct {
	Parameter string
	Target    float64
	Tolerance float64
	Weight    float64
}

// Validate checks the objective is usable.
func (o Objective) Validate() error {
	if o.Parameter == "" {
		return &chem.EvaluationError{Kind: chem.KindInvalidInput, Msg: "objective parameter cannot be empty"}
	}
	if o.Tolerance <= 0 {
		return &chem.EvaluationError{
			Kind: chem.KindInvalidInput,
			Msg:  fmt.Sprintf("objective %s: tolerance must be positive", o.Parameter),
		}
	}
	if o.Weight < 0 || o.Weight > 1 {
		return &chem.EvaluationError{
			Kind: chem.KindInvalidInput,
			Msg:  fmt.Sprintf("objective %s: weight must be in [0, 1], got %g", o.Parameter, o.Weight),
		}
	}
	return nil
}

// normalizeWeights returns objective weights scaled to sum to 1. A weight
// sum of zero (all objectives weightless) degrades to equal weights.
func normalizeWeights(objectives []Objective) []float64 {
	weights := make([]float64, len(objectives))
	total := 0.0
	for _, o := range objectives {
		total += o.Weight
	}
	if total == 0 {
		for i := range weights {
			weights[i] = 1 / float64(len(objectives))
		}
		return weights
	}
	for i, o := range objectives {
		weights[i] = o.Weight / total
	}
	return weights
}

// errorVector computes each objective's tolerance-normalized absolute error
// for one observation. Fails with invalid input when the evaluator does not
// report an objective's parameter.
func errorVector(obs *chem.Observation, objectives []Objective) ([]float64, error) {
	errs := make([]float64, len(objectives))
	for i, o := range objectives {
		value, ok := obs.Value(o.Parameter)
		if !ok {
			return nil, &chem.EvaluationError{
				Kind: chem.KindInvalidInput,
				Msg:  fmt.Sprintf("evaluator did not report objective parameter %q", o.Parameter),
			}
		}
		diff := value - o.Target
		if diff < 0 {
			diff = -diff
		}
		errs[i] = diff / o.Tolerance
	}
	return errs, nil
}

// weightedScore scalarizes an error vector: sum of normalized weight times
// tolerance-normalized error. A score of 0 means every objective is hit
// exactly; a score of 1 roughly means objectives are off by one tolerance
// on weighted average.
func weightedScore(errs, weights []float64) float64 {
	score := 0.0
	for i, e := range errs {
		score += weights[i] * e
	}
	return score
}

// withinTolerances reports whether every objective error is at most one
// tolerance unit.
func withinTolerances(errs []float64) bool {
	for _, e := range errs {
		if e > 1 {
			return false
		}
	}
	return true
}

// sortIndicesByWeight returns objective indices in descending weight order,
// stable for equal weights. Used by the sequential strategy to pair the
// k-th reagent with the k-th most important objective.
func sortIndicesByWeight(objectives []Objective) []int {
	idx := make([]int, len(objectives))
	for i := range idx {
		idx[i] = i
	}
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && objectives[idx[j]].Weight > objectives[idx[j-1]].Weight; j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
	return idx
}

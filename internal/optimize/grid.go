package optimize

import (
	"fmt"

	"github.com/aquatics-lab/dosing-core/internal/chem"
	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

// axisPoints discretizes one reagent's dose range. A fixed Step wins over
// the shared resolution; degenerate bounds collapse to a single point.
func axisPoints(r chem.Reagent, resolution int) []float64 {
	if r.Degenerate() {
		return []float64{r.Min}
	}
	if r.Step > 0 {
		points := make([]float64, 0, int((r.Max-r.Min)/r.Step)+2)
		for d := r.Min; d <= r.Max+r.Step*1e-9; d += r.Step {
			points = append(points, utils.ClampFloat64(d, r.Min, r.Max))
		}
		// A step that does not divide the range evenly still samples the
		// upper bound.
		if points[len(points)-1] < r.Max-r.Step*1e-9 {
			points = append(points, r.Max)
		}
		return points
	}
	if resolution < 2 {
		resolution = 2
	}
	points := make([]float64, resolution)
	span := r.Max - r.Min
	for i := 0; i < resolution; i++ {
		points[i] = r.Min + span*float64(i)/float64(resolution-1)
	}
	return points
}

// gridAxes builds every reagent's axis at the given resolution.
func gridAxes(reagents []chem.Reagent, resolution int) [][]float64 {
	axes := make([][]float64, len(reagents))
	for i, r := range reagents {
		axes[i] = axisPoints(r, resolution)
	}
	return axes
}

// combinationCount multiplies axis sizes, saturating at limit+1 so callers
// can compare against a cap without overflow.
func combinationCount(axes [][]float64, limit int) int {
	count := 1
	for _, axis := range axes {
		count *= len(axis)
		if count > limit {
			return limit + 1
		}
	}
	return count
}

// cartesian enumerates every dose combination in deterministic axis-major
// order (last axis varies fastest).
func cartesian(axes [][]float64) [][]float64 {
	total := 1
	for _, axis := range axes {
		total *= len(axis)
	}
	combos := make([][]float64, 0, total)

	combo := make([]float64, len(axes))
	var walk func(dim int)
	walk = func(dim int) {
		if dim == len(axes) {
			out := make([]float64, len(combo))
			copy(out, combo)
			combos = append(combos, out)
			return
		}
		for _, v := range axes[dim] {
			combo[dim] = v
			walk(dim + 1)
		}
	}
	walk(0)
	return combos
}

// planAxes builds grid axes under the evaluation budget. The resolution is
// halved (rounding up, floor of 2 points per axis) until the total number of
// evaluator calls — combinations times callsPerCombo — fits the cap. The
// reduction is deterministic and logged by the caller; reagents with a fixed
// Step keep their step grid and are not reduced. Returns the axes and the
// resolution actually used.
func planAxes(reagents []chem.Reagent, resolution, callsPerCombo, evalCap int) ([][]float64, int, error) {
	if callsPerCombo < 1 {
		callsPerCombo = 1
	}
	for {
		axes := gridAxes(reagents, resolution)
		count := combinationCount(axes, evalCap)
		if count*callsPerCombo <= evalCap {
			return axes, resolution, nil
		}
		if resolution <= 2 {
			return nil, resolution, &chem.EvaluationError{
				Kind: chem.KindInvalidInput,
				Msg: fmt.Sprintf("grid of %d reagents exceeds the evaluation cap %d even at minimum resolution",
					len(reagents), evalCap),
			}
		}
		resolution = (resolution + 1) / 2
	}
}

// latinHypercube draws n dose vectors with one sample per axis stratum,
// shuffled independently per dimension. Deterministic for a fixed seed.
func latinHypercube(reagents []chem.Reagent, n int, rng *utils.RandSource) [][]float64 {
	samples := make([][]float64, n)
	for i := range samples {
		samples[i] = make([]float64, len(reagents))
	}

	for dim, r := range reagents {
		perm := rng.Perm(n)
		span := r.Max - r.Min
		for i := 0; i < n; i++ {
			if r.Degenerate() {
				samples[i][dim] = r.Min
				continue
			}
			stratum := float64(perm[i])
			samples[i][dim] = r.Min + span*(stratum+rng.Float64())/float64(n)
		}
	}
	return samples
}

package search

import (
	"sort"

	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

// RunStatus is the state machine tag for one search run.
type RunStatus string

const (
	// StatusSearching means the run is still iterating.
	StatusSearching RunStatus = "searching"
	// StatusConverged means a dose within tolerance was found.
	StatusConverged RunStatus = "converged"
	// StatusDiverged means no valid bracket could be established.
	StatusDiverged RunStatus = "diverged"
	// StatusEvaluatorFailed means the evaluator failed in a way the run
	// could not recover from.
	StatusEvaluatorFailed RunStatus = "evaluator_failed"
)

// Sample is one evaluated (dose, observed value) pair.
type Sample struct {
	Dose     float64
	Observed float64
}

// historySize bounds the recent-sample window used for oscillation detection.
const historySize = 3

// ConvergenceState is the mutable state of one dose search run: the current
// bracket, a bounded window of recent samples, the iteration counter, and the
// run status. Owned exclusively by the search loop and discarded at exit.
// Consolidates what would otherwise be per-call bracket/seed special-casing.
type ConvergenceState struct {
	Lo, Hi     Sample
	Iterations int
	Status     RunStatus

	recent []Sample // last historySize samples in evaluation order
	all    []Sample // every sample of the run, for sub-interval recovery and hints
}

// NewConvergenceState starts a run in the searching state.
func NewConvergenceState() *ConvergenceState {
	return &ConvergenceState{
		Status: StatusSearching,
		recent: make([]Sample, 0, historySize),
	}
}

// Record appends a sample to the bounded recent window and the full log.
func (s *ConvergenceState) Record(sample Sample) {
	if len(s.recent) == historySize {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:historySize-1]
	}
	s.recent = append(s.recent, sample)
	s.all = append(s.all, sample)
}

// Oscillating reports whether the last three samples, ordered by dose, show
// observed values whose successive differences change sign. A monotonic
// response can never trip this; an evaluator reporting inconsistent
// over-saturated states can.
func (s *ConvergenceState) Oscillating() bool {
	if len(s.recent) < historySize {
		return false
	}
	byDose := make([]Sample, historySize)
	copy(byDose, s.recent)
	sort.Slice(byDose, func(i, j int) bool { return byDose[i].Dose < byDose[j].Dose })

	d1 := byDose[1].Observed - byDose[0].Observed
	d2 := byDose[2].Observed - byDose[1].Observed
	return d1*d2 < 0
}

// Tried reports whether a dose within eps of d has already been evaluated.
func (s *ConvergenceState) Tried(d, eps float64) bool {
	for _, sample := range s.all {
		if utils.ApproxEqual(sample.Dose, d, eps) {
			return true
		}
	}
	return false
}

// Best returns the sample whose observed value is closest to target, and
// whether any sample exists.
func (s *ConvergenceState) Best(target float64) (Sample, bool) {
	if len(s.all) == 0 {
		return Sample{}, false
	}
	best := s.all[0]
	for _, sample := range s.all[1:] {
		if absErr(sample.Observed, target) < absErr(best.Observed, target) {
			best = sample
		}
	}
	return best, true
}

// ConsistentSubInterval re-derives a bracket from every sample of the run:
// the narrowest adjacent dose pair whose observed values straddle target.
// Used after oscillation is detected, when the running bracket can no longer
// be trusted. Returns false when no straddling pair exists.
func (s *ConvergenceState) ConsistentSubInterval(target float64) (lo, hi Sample, ok bool) {
	if len(s.all) < 2 {
		return Sample{}, Sample{}, false
	}
	byDose := make([]Sample, len(s.all))
	copy(byDose, s.all)
	sort.Slice(byDose, func(i, j int) bool { return byDose[i].Dose < byDose[j].Dose })

	bestWidth := -1.0
	for i := 0; i+1 < len(byDose); i++ {
		a, b := byDose[i], byDose[i+1]
		if utils.SameSign(a.Observed-target, b.Observed-target) {
			continue
		}
		width := b.Dose - a.Dose
		if bestWidth < 0 || width < bestWidth {
			lo, hi, bestWidth = a, b, width
			ok = true
		}
	}
	return lo, hi, ok
}

func absErr(observed, target float64) float64 {
	if observed > target {
		return observed - target
	}
	return target - observed
}

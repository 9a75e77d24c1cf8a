package batch

import (
	"time"

	"github.com/aquatics-lab/dosing-core/pkg/utils"
)

// BatchReport is the ordered outcome of one batch run. Results keep the
// input scenario order; the name index serves point lookups.
type BatchReport struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []ScenarioResult

	byName map[string]int
}

func newReport(results []ScenarioResult, started, finished time.Time) *BatchReport {
	r := &BatchReport{
		ID:         utils.GenerateBatchID(),
		StartedAt:  started,
		FinishedAt: finished,
		Results:    results,
		byName:     make(map[string]int, len(results)),
	}
	for i, res := range results {
		r.byName[res.Name] = i
	}
	return r
}

// Get returns the result for a scenario name.
func (r *BatchReport) Get(name string) (*ScenarioResult, bool) {
	idx, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return &r.Results[idx], true
}

// Len returns the number of scenario results.
func (r *BatchReport) Len() int {
	return len(r.Results)
}

// Succeeded counts scenarios that finished with StatusSuccess.
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// Failed counts scenarios with any non-success status.
func (r *BatchReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}

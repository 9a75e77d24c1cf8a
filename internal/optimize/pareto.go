package optimize

// dominates reports whether error vector a dominates b for minimization:
// every component of a is <= the corresponding component of b and at least
// one is strictly less.
func dominates(a, b []float64) bool {
	strict := false
	for i := range a {
		if a[i] > b[i] {
			return false
		}
		if a[i] < b[i] {
			strict = true
		}
	}
	return strict
}

// ParetoSet holds non-dominated candidates. The invariant — no member's
// error vector is dominated by another member's — is maintained on every
// Add. Sets are rebuilt per optimization run, never carried across runs.
type ParetoSet struct {
	members []Candidate
}

// Add inserts a candidate, dropping it if a member dominates it and evicting
// members it dominates.
func (p *ParetoSet) Add(c Candidate) {
	for _, m := range p.members {
		if dominates(m.Errors, c.Errors) {
			return
		}
	}
	kept := p.members[:0]
	for _, m := range p.members {
		if !dominates(c.Errors, m.Errors) {
			kept = append(kept, m)
		}
	}
	p.members = append(kept, c)
}

// Members returns the current front in insertion order.
func (p *ParetoSet) Members() []Candidate {
	out := make([]Candidate, len(p.members))
	copy(out, p.members)
	return out
}

// Len returns the number of non-dominated candidates.
func (p *ParetoSet) Len() int {
	return len(p.members)
}

package chem

import (
	"fmt"
	"sort"
	"strings"
)

// Water describes the base composition a recipe starts from. The component
// map is passed through to the evaluator untouched; this layer never
// interprets it.
type Water struct {
	TemperatureC float64
	PH           float64
	Components   map[string]float64 // component name -> concentration (mg/L)
}

// Dose is one reagent addition.
type Dose struct {
	Formula string
	Amount  float64
	Unit    string
}

// Recipe is one candidate chemical input: a base water plus an ordered list
// of reagent doses. Recipes are values; callers construct a new Recipe per
// trial instead of mutating a shared one.
type Recipe struct {
	Water Water
	Doses []Dose
}

// NewRecipe creates a recipe from a base water and an initial dose list.
// The dose slice is copied so the recipe does not alias caller state.
func NewRecipe(water Water, doses ...Dose) Recipe {
	copied := make([]Dose, len(doses))
	copy(copied, doses)
	return Recipe{Water: water, Doses: copied}
}

// WithDose returns a copy of the recipe with one more dose appended.
func (r Recipe) WithDose(formula string, amount float64, unit string) Recipe {
	doses := make([]Dose, len(r.Doses), len(r.Doses)+1)
	copy(doses, r.Doses)
	doses = append(doses, Dose{Formula: formula, Amount: amount, Unit: unit})
	return Recipe{Water: r.Water, Doses: doses}
}

// WithDoses returns a copy of the recipe with the given doses appended in order.
func (r Recipe) WithDoses(doses []Dose) Recipe {
	combined := make([]Dose, 0, len(r.Doses)+len(doses))
	combined = append(combined, r.Doses...)
	combined = append(combined, doses...)
	return Recipe{Water: r.Water, Doses: combined}
}

// Key returns a canonical string identity for the recipe. Two recipes have
// equal keys iff their base composition and ordered dose lists are equal.
// Used as the memoization cache key.
func (r Recipe) Key() string {
	var b strings.Builder
	fmt.Fprintf(&b, "T=%.6g;pH=%.6g", r.Water.TemperatureC, r.Water.PH)

	names := make([]string, 0, len(r.Water.Components))
	for name := range r.Water.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, ";%s=%.10g", name, r.Water.Components[name])
	}

	for _, d := range r.Doses {
		fmt.Fprintf(&b, "|%s:%.10g:%s", d.Formula, d.Amount, d.Unit)
	}
	return b.String()
}

// Equal reports whether two recipes have the same base composition and the
// same ordered dose list.
func (r Recipe) Equal(other Recipe) bool {
	return r.Key() == other.Key()
}

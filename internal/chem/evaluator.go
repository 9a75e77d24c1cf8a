// Package chem wraps the external chemical-equilibrium evaluator behind a
// uniform synchronous call and owns the Recipe/Observation data model shared
// by the search and optimization layers. The chemistry itself is delegated
// entirely to the wrapped engine; this package only adapts it.
package chem

import "context"

// Evaluator is the uniform boundary to the equilibrium engine. Evaluate must
// be safe to call concurrently; implementations that wrap a non-reentrant
// engine serialize access internally (see Pool) rather than leak that
// constraint to callers. Expected domain failures are returned as
// *EvaluationError, never panics.
type Evaluator interface {
	Evaluate(ctx context.Context, recipe Recipe) (*Observation, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, recipe Recipe) (*Observation, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, recipe Recipe) (*Observation, error) {
	return f(ctx, recipe)
}

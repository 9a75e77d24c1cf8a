package chem

import (
	"context"
	"fmt"
)

// Engine is a single evaluator instance. Engines are assumed non-reentrant:
// one Solve call at a time per instance.
type Engine interface {
	Solve(ctx context.Context, recipe Recipe) (*Observation, error)
}

// Pool adapts a set of non-reentrant engine instances into a concurrency-safe
// Evaluator. Each call checks an instance out of the pool for its duration,
// so at most Size() evaluator calls are in flight at any instant. The pool is
// the primary resource-protection mechanism: the external solver is the
// bottleneck, not this layer.
type Pool struct {
	instances chan Engine
	size      int
}

// NewPool builds a pool of size engine instances from the factory.
func NewPool(factory func() (Engine, error), size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	instances := make(chan Engine, size)
	for i := 0; i < size; i++ {
		engine, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create engine instance %d: %w", i, err)
		}
		instances <- engine
	}
	return &Pool{instances: instances, size: size}, nil
}

// Size returns the number of engine instances, which is also the hard cap on
// concurrent in-flight evaluations.
func (p *Pool) Size() int {
	return p.size
}

// Evaluate checks out an instance, solves, and returns the instance to the
// pool. Blocks while all instances are busy; honors ctx while waiting.
func (p *Pool) Evaluate(ctx context.Context, recipe Recipe) (*Observation, error) {
	var engine Engine
	select {
	case engine = <-p.instances:
	case <-ctx.Done():
		return nil, &EvaluationError{Kind: KindTimeout, Msg: "cancelled waiting for an evaluator instance", Err: ctx.Err()}
	}
	defer func() { p.instances <- engine }()

	return engine.Solve(ctx, recipe)
}

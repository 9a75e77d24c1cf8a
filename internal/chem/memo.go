package chem

import (
	"context"
	"sync"
)

// Memo is an opt-in memoizing wrapper around an Evaluator. The cache key is
// the recipe's full canonical identity; entries live until process exit.
// Failed evaluations are not cached, so transient solver failures can be
// retried through the same wrapper.
type Memo struct {
	inner Evaluator

	mu    sync.RWMutex
	cache map[string]*Observation
}

// NewMemo wraps an evaluator with recipe-keyed memoization.
func NewMemo(inner Evaluator) *Memo {
	return &Memo{
		inner: inner,
		cache: make(map[string]*Observation),
	}
}

// Evaluate returns a cached observation for a previously seen recipe, or
// delegates and caches on success. Observations are immutable, so the cached
// pointer is shared.
func (m *Memo) Evaluate(ctx context.Context, recipe Recipe) (*Observation, error) {
	key := recipe.Key()

	m.mu.RLock()
	obs, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return obs, nil
	}

	obs, err := m.inner.Evaluate(ctx, recipe)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[key] = obs
	m.mu.Unlock()
	return obs, nil
}

// Len returns the number of cached observations.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

package chem

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles calls to an Evaluator with a token-bucket limiter.
// Useful when the wrapped engine is an externally hosted or license-metered
// solver that must not be hammered at pool speed.
type Limited struct {
	inner   Evaluator
	limiter *rate.Limiter
}

// NewLimited wraps an evaluator with a rate limit of callsPerSecond and the
// given burst size.
func NewLimited(inner Evaluator, callsPerSecond float64, burst int) *Limited {
	return &Limited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

// Evaluate waits for limiter admission, then delegates. A context cancelled
// while waiting surfaces as a timeout-kind EvaluationError.
func (l *Limited) Evaluate(ctx context.Context, recipe Recipe) (*Observation, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, &EvaluationError{Kind: KindTimeout, Msg: "cancelled waiting for rate limiter", Err: err}
	}
	return l.inner.Evaluate(ctx, recipe)
}

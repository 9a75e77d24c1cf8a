package chem

import (
	"errors"
	"fmt"
)

// ErrorKind classifies evaluator failures so callers can branch on the
// class instead of parsing messages.
type ErrorKind string

const (
	// KindNonConvergence means the equilibrium solver ran but did not converge.
	KindNonConvergence ErrorKind = "non_convergence"
	// KindInvalidInput means the request itself is malformed (unknown formula,
	// bad bounds). Never retried.
	KindInvalidInput ErrorKind = "invalid_input"
	// KindSolverCrash means the underlying solver failed unexpectedly.
	KindSolverCrash ErrorKind = "solver_crash"
	// KindTimeout means the evaluator call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
)

// EvaluationError is the typed failure returned by an Evaluator. Expected
// domain failures always surface as this type rather than ad hoc errors.
type EvaluationError struct {
	Kind    ErrorKind
	Formula string // offending reagent formula, when known
	Msg     string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e.Formula != "" {
		return fmt.Sprintf("evaluation failed (%s) for %s: %s", e.Kind, e.Formula, e.Msg)
	}
	return fmt.Sprintf("evaluation failed (%s): %s", e.Kind, e.Msg)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from an error chain. Returns KindSolverCrash
// for non-nil errors that are not EvaluationErrors, and "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return evalErr.Kind
	}
	return KindSolverCrash
}

// Retryable reports whether the failure class is transient. Invalid input
// and non-convergence are definitive; crashes and timeouts may succeed on a
// perturbed retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindSolverCrash, KindTimeout:
		return true
	default:
		return false
	}
}

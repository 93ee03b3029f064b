package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrEvaluation is matched by every error returned from expression evaluation.
	ErrEvaluation = errors.New("rule evaluation failed")
	// ErrDisabledFunction is returned when an expression calls a disabled function.
	ErrDisabledFunction = errors.New("function is disabled")
	// ErrInvalidArgument is returned when a library function gets an unusable argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidFilter is returned for filter values that cannot be matched.
	ErrInvalidFilter = errors.New("invalid filter")
)

// EvaluationError carries the failing expression and a snapshot of the variables.
type EvaluationError struct {
	Err        error
	Variables  map[string]any
	Expression string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%v (expression %q)", e.Err, e.Expression)
}

// Unwrap exposes both ErrEvaluation and the underlying cause.
func (e *EvaluationError) Unwrap() []error {
	return []error{ErrEvaluation, e.Err}
}

func invalidArgument(function string, value any) error {
	return fmt.Errorf("%w %s for %s()", ErrInvalidArgument, describe(value), function)
}

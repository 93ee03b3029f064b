package importer

import (
	"errors"
	"fmt"
)

// ErrInvalidAction is returned for actions that do not have exactly one shape.
var ErrInvalidAction = errors.New("invalid import action")

// Op is an operation that moves an import one stage forward.
type Op string

// Operations.
const (
	OpSegmentation   Op = "segmentation"
	OpClassification Op = "classification"
	OpAnalysis       Op = "analysis"
	OpExecution      Op = "execution"
)

// Action is a request to change an import. Exactly one field is set.
type Action struct {
	Configure map[string]any            `json:"configure,omitempty"`
	Answer    map[string]map[string]any `json:"answer,omitempty"`
	Op        Op                        `json:"op,omitempty"`
	Retry     bool                      `json:"retry,omitempty"`
	Rollback  bool                      `json:"rollback,omitempty"`
}

// OpAction returns an action running op.
func OpAction(op Op) Action {
	return Action{Op: op}
}

// ConfigureAction returns an action merging values into the configuration.
func ConfigureAction(values map[string]any) Action {
	return Action{Configure: values}
}

// AnswerAction returns an action answering one variable of a segment.
func AnswerAction(segment, variable string, value any) Action {
	return Action{Answer: map[string]map[string]any{segment: {variable: value}}}
}

// RetryAction returns a retry action.
func RetryAction() Action {
	return Action{Retry: true}
}

// RollbackAction returns a rollback action.
func RollbackAction() Action {
	return Action{Rollback: true}
}

// Validate checks that the action has exactly one known shape.
func (a Action) Validate() error {
	shapes := 0
	if a.Op != "" {
		shapes++
		switch a.Op {
		case OpSegmentation, OpClassification, OpAnalysis, OpExecution:
		default:
			return fmt.Errorf("%w: unknown operation %q", ErrInvalidAction, a.Op)
		}
	}
	if a.Configure != nil {
		shapes++
	}
	if a.Answer != nil {
		shapes++
	}
	if a.Retry {
		shapes++
	}
	if a.Rollback {
		shapes++
	}
	switch shapes {
	case 0:
		return fmt.Errorf("%w: empty action", ErrInvalidAction)
	case 1:
		return nil
	default:
		return fmt.Errorf("%w: %d shapes in one action", ErrInvalidAction, shapes)
	}
}

// String describes the action for logs.
func (a Action) String() string {
	switch {
	case a.Op != "":
		return string(a.Op)
	case a.Configure != nil:
		return "configure"
	case a.Answer != nil:
		return "answer"
	case a.Retry:
		return "retry"
	case a.Rollback:
		return "rollback"
	default:
		return "empty"
	}
}

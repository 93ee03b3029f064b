package importer

import (
	"fmt"

	"github.com/Veraticus/spice-ledger/internal/classification"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// DirectionsType tells what should happen next with an import.
type DirectionsType string

// Direction types.
const (
	DirectionAction   DirectionsType = "action"
	DirectionUI       DirectionsType = "ui"
	DirectionComplete DirectionsType = "complete"
)

// UI elements asked for by directions.
const (
	ElementClassification = "classification"
	ElementAccounts       = "accounts"
	ElementFlags          = "flags"
)

// QueryKind tells what kind of input a query asks for.
type QueryKind string

// Query kinds.
const (
	QueryUnclassified QueryKind = "unclassified"
	QueryQuestion     QueryKind = "question"
	QueryAccount      QueryKind = "account"
	QueryFlag         QueryKind = "flag"
)

// Query is one piece of information the user has to provide.
type Query struct {
	Choices    map[string]any  `json:"choices,omitempty"`
	Kind       QueryKind       `json:"kind"`
	Segment    model.SegmentID `json:"segment,omitempty"`
	Variable   string          `json:"variable"`
	Prompt     string          `json:"prompt"`
	Type       string          `json:"type,omitempty"`
	Rule       string          `json:"rule,omitempty"`
	Candidates []string        `json:"candidates,omitempty"`
	Line       int             `json:"line,omitempty"`
}

// Answer builds the action that gives value as the answer to the query.
// Accounts and flags apply to the whole batch and go into the configuration.
func (q Query) Answer(value any) Action {
	if q.Kind == QueryFlag || q.Kind == QueryAccount {
		return ConfigureAction(map[string]any{q.Variable: value})
	}
	return AnswerAction(string(q.Segment), q.Variable, value)
}

// Directions tells the caller how to continue an import: run an action right
// away, ask the user, or stop.
type Directions struct {
	Action  *Action        `json:"action,omitempty"`
	Type    DirectionsType `json:"type"`
	Element string         `json:"element,omitempty"`
	Queries []Query        `json:"queries,omitempty"`
}

// IsImmediate reports whether the directions can be followed without the user.
func (d Directions) IsImmediate() bool {
	return d.Type == DirectionAction && d.Action != nil
}

// IsComplete reports whether the import is finished.
func (d Directions) IsComplete() bool {
	return d.Type == DirectionComplete
}

// String describes the directions for logs and the CLI.
func (d Directions) String() string {
	switch d.Type {
	case DirectionAction:
		if d.Action != nil {
			return fmt.Sprintf("run %s", d.Action)
		}
		return "run"
	case DirectionUI:
		return fmt.Sprintf("ask %s (%d queries)", d.Element, len(d.Queries))
	default:
		return string(d.Type)
	}
}

func actionDirections(op Op) Directions {
	action := OpAction(op)
	return Directions{Type: DirectionAction, Action: &action}
}

func completeDirections() Directions {
	return Directions{Type: DirectionComplete}
}

func uiDirections(element string, queries []Query) Directions {
	return Directions{Type: DirectionUI, Element: element, Queries: queries}
}

func classificationQueries(queries []classification.Query) []Query {
	out := make([]Query, 0, len(queries))
	for _, q := range queries {
		query := Query{
			Segment: q.Segment,
			Rule:    q.Rule,
			Line:    q.Line,
		}
		switch q.Kind {
		case classification.QueryUnclassified:
			query.Kind = QueryUnclassified
			query.Variable = "transfers"
			query.Prompt = q.Text
			query.Type = "transfers"
		default:
			query.Kind = QueryQuestion
			query.Variable = q.Variable
			query.Prompt = q.Text
			if q.Question != nil {
				query.Prompt = q.Question.Prompt()
				query.Type = q.Question.Kind()
				query.Choices = model.CloneMap(q.Question.Ask)
			}
		}
		out = append(out, query)
	}
	return out
}

// inputNeeded is returned by stage handlers that cannot continue without the
// user. Dispatch turns it into UI directions and keeps the state.
type inputNeeded struct {
	element string
	queries []Query
}

func (e *inputNeeded) Error() string {
	return fmt.Sprintf("input needed for %s", e.element)
}

// Answers collects the values given for queries. Account and flag values
// become one configure action, segment answers one answer action.
type Answers struct {
	configure map[string]any
	segments  map[string]map[string]any
}

// Set records value for a variable of the query. Unclassified queries are
// answered with either "skip" or "transfers", other queries with their own
// variable.
func (a *Answers) Set(q Query, variable string, value any) {
	if q.Kind == QueryAccount || q.Kind == QueryFlag {
		if a.configure == nil {
			a.configure = map[string]any{}
		}
		a.configure[variable] = value
		return
	}
	if a.segments == nil {
		a.segments = map[string]map[string]any{}
	}
	segment := string(q.Segment)
	if a.segments[segment] == nil {
		a.segments[segment] = map[string]any{}
	}
	a.segments[segment][variable] = value
}

// Len returns the number of recorded values.
func (a *Answers) Len() int {
	n := len(a.configure)
	for _, vars := range a.segments {
		n += len(vars)
	}
	return n
}

// Actions returns the configure action followed by the answer action, leaving
// out the empty ones.
func (a *Answers) Actions() []Action {
	var actions []Action
	if len(a.configure) > 0 {
		actions = append(actions, ConfigureAction(a.configure))
	}
	if len(a.segments) > 0 {
		actions = append(actions, Action{Answer: a.segments})
	}
	return actions
}

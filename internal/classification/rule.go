// Package classification turns segments of imported lines into asset transfers
// by running user supplied import rules through the rule engine.
package classification

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Veraticus/spice-ledger/internal/rules"
)

// ResultRecord maps asset transfer fields to expressions. Nested maps and
// lists are evaluated element by element.
type ResultRecord map[string]any

// ResultList is the result section of a rule. It decodes from a single record
// or from a list of records.
type ResultList []ResultRecord

// UnmarshalJSON accepts both an object and an array of objects.
func (r *ResultList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}
	if data[0] == '{' {
		var single ResultRecord
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("failed to decode rule result: %w", err)
		}
		*r = ResultList{single}
		return nil
	}
	var list []ResultRecord
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to decode rule result: %w", err)
	}
	*r = list
	return nil
}

// Question is asked from the user every time the owning rule fires.
// A question with Ask is a choice between labels mapping to values,
// otherwise Type selects a free form input.
type Question struct {
	Ask   map[string]any `json:"ask,omitempty" mapstructure:"ask"`
	Name  string         `json:"name,omitempty" mapstructure:"name"`
	Label string         `json:"label,omitempty" mapstructure:"label"`
	Text  string         `json:"text,omitempty" mapstructure:"text"`
	Type  string         `json:"type,omitempty" mapstructure:"type"`
}

// Prompt returns the text shown for the question.
func (q Question) Prompt() string {
	switch {
	case q.Label != "":
		return q.Label
	case q.Text != "":
		return q.Text
	default:
		return q.Name
	}
}

// Kind returns "choice" for multiple choice questions or the input type.
func (q Question) Kind() string {
	if len(q.Ask) > 0 {
		return "choice"
	}
	if q.Type == "" {
		return "text"
	}
	return q.Type
}

// RuleOptions holds the optional flags of a rule.
type RuleOptions struct {
	SingleMatch bool `json:"singleMatch,omitempty" mapstructure:"singleMatch"`
}

// ImportRule classifies lines whose filter evaluates to true.
type ImportRule struct {
	Questions map[string]Question `json:"questions,omitempty" mapstructure:"questions"`
	Name      string              `json:"name" mapstructure:"name"`
	Filter    string              `json:"filter" mapstructure:"filter"`
	Comment   string              `json:"comment,omitempty" mapstructure:"comment"`
	Result    ResultList          `json:"result" mapstructure:"result"`
	Examples  []any               `json:"examples,omitempty" mapstructure:"examples"`
	Options   RuleOptions         `json:"options" mapstructure:"options"`
}

// DecodeRules converts the decoded "rules" configuration value into rules.
func DecodeRules(v any) ([]ImportRule, error) {
	if v == nil {
		return nil, nil
	}
	if list, ok := v.([]ImportRule); ok {
		return list, nil
	}
	data, err := json.Marshal(rules.Normalize(v))
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	var decoded []ImportRule
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rules: %w", err)
	}
	return decoded, nil
}

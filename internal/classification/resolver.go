package classification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Veraticus/spice-ledger/internal/knowledge"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/rules"
)

var (
	// ErrNoRuleMatch is returned when a segment has no lines any rule could see.
	ErrNoRuleMatch = errors.New("could not find rules matching")
	// ErrEmptyResult is returned when rules matched but every transfer was dropped.
	ErrEmptyResult = errors.New("found matches but the result list is empty")
	// ErrIncompleteTransfer is returned when a rule produces a transfer without reason, type or asset.
	ErrIncompleteTransfer = errors.New("asset transfer is incomplete")
	// ErrUnknownQuestion is returned for a question reference that is not defined in the configuration.
	ErrUnknownQuestion = errors.New("question is not defined")
	// ErrMissingResult is returned for a matching rule with no result section.
	ErrMissingResult = errors.New("rule has no result section")
)

// QueryKind tells why a segment needs user input.
type QueryKind string

// Query kinds.
const (
	QueryUnclassified QueryKind = "unclassified"
	QueryQuestion     QueryKind = "question"
)

// Query describes one piece of information needed from the user before a
// segment can be classified.
type Query struct {
	Question *Question      `json:"question,omitempty"`
	Segment  model.SegmentID `json:"segment"`
	Kind     QueryKind      `json:"kind"`
	Name     string         `json:"name"`
	Variable string         `json:"variable,omitempty"`
	Rule     string         `json:"rule,omitempty"`
	Text     string         `json:"text"`
	Line     int            `json:"line"`
}

// Result is the outcome of resolving one segment.
type Result struct {
	Transfers    []model.AssetTransfer `json:"transfers"`
	Unclassified []int                 `json:"unclassified,omitempty"`
	Queries      []Query               `json:"queries,omitempty"`
	Skipped      bool                  `json:"skipped,omitempty"`
}

// NeedsInput reports whether the segment waits for answers.
func (r Result) NeedsInput() bool {
	return len(r.Queries) > 0
}

// Description returns the transfers in their stored form.
func (r Result) Description() model.TransactionDescription {
	transfers := make([]model.AssetTransfer, len(r.Transfers))
	for i, t := range r.Transfers {
		transfers[i] = t.Clone()
	}
	return model.TransactionDescription{Type: "transfers", Transfers: transfers}
}

// Resolver applies import rules to segments.
type Resolver struct {
	engine    *rules.Engine
	knowledge *knowledge.Base
	logger    *slog.Logger
}

// NewResolver creates a resolver. A nil knowledge base disables VAT lookups
// and a nil logger uses slog.Default().
func NewResolver(engine *rules.Engine, kb *knowledge.Base, logger *slog.Logger) *Resolver {
	if engine == nil {
		engine = rules.New(rules.WithLogger(logger))
	}
	if kb == nil {
		kb = knowledge.Empty()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		engine:    engine,
		knowledge: kb,
		logger:    logger,
	}
}

// Resolve classifies the lines of one segment. Lines are offered one by one to
// the rules in order and the first rule whose filter is true produces the
// transfers of that line. Lines without a matching rule and unanswered rule
// questions are reported as queries instead of errors.
func (r *Resolver) Resolve(ctx context.Context, segment model.ImportSegment, lines []model.TextFileLine, ruleList []ImportRule, config model.ImportConfig) (Result, error) {
	logger := r.logger.With("segment", segment.ID)

	if result, ok, err := r.explicit(segment, config); ok || err != nil {
		return result, err
	}

	ruleList, err := withNamedQuestions(ruleList, config)
	if err != nil {
		return Result{}, err
	}

	lineValues := make([]any, len(lines))
	for i, line := range lines {
		lineValues[i] = model.CloneValue(line.Columns)
	}

	var (
		result  Result
		matched bool
	)
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		lineMatched := false
		for _, rule := range ruleList {
			values := ruleVariables(line, lineValues, config, rule)
			fired, err := r.engine.Eval(ctx, rule.Filter, values)
			if err != nil {
				return Result{}, fmt.Errorf("rule '%s' filter: %w", rule.Name, err)
			}
			if fired != true {
				continue
			}
			logger.Debug("Rule matches", "rule", rule.Name, "line", line.Line)
			matched = true
			lineMatched = true
			if len(rule.Result) == 0 {
				return Result{}, fmt.Errorf("%w: '%s'", ErrMissingResult, rule.Name)
			}

			answers, missing := r.answers(segment.ID, line, rule, config)
			if len(missing) > 0 {
				result.Queries = append(result.Queries, missing...)
				break
			}

			transfers, err := r.results(ctx, rule, values, answers)
			if err != nil {
				return Result{}, err
			}
			result.Transfers = append(result.Transfers, transfers...)

			if rule.Options.SingleMatch && !result.NeedsInput() {
				return r.finish(segment, result)
			}
			break
		}
		if !lineMatched {
			result.Unclassified = append(result.Unclassified, line.Line)
			result.Queries = append(result.Queries, Query{
				Segment: segment.ID,
				Kind:    QueryUnclassified,
				Name:    fmt.Sprintf("answer.%s.transfers", segment.ID),
				Text:    lines[i].Text,
				Line:    line.Line,
			})
		}
	}

	if result.NeedsInput() {
		result.Transfers = nil
		return result, nil
	}
	if len(result.Transfers) > 0 {
		return r.finish(segment, result)
	}
	if matched {
		return Result{}, fmt.Errorf("%w for segment %s", ErrEmptyResult, segment.ID)
	}
	return Result{}, fmt.Errorf("%w segment %s", ErrNoRuleMatch, segment.ID)
}

func (r *Resolver) finish(segment model.ImportSegment, result Result) (Result, error) {
	transfers, err := r.postProcess(segment, result.Transfers)
	if err != nil {
		return Result{}, err
	}
	result.Transfers = transfers
	return result, nil
}

// explicit returns an answer given for the whole segment: either a complete
// list of transfers or a request to skip it.
func (r *Resolver) explicit(segment model.ImportSegment, config model.ImportConfig) (Result, bool, error) {
	if segment.ID == "" {
		return Result{}, false, nil
	}
	if raw, ok := config.Answer(segment.ID, "transfers"); ok && raw != nil {
		list, ok := rules.Normalize(raw).([]any)
		if !ok {
			return Result{}, true, fmt.Errorf("%w: explicit transfers of segment %s must be a list", ErrIncompleteTransfer, segment.ID)
		}
		transfers := make([]model.AssetTransfer, 0, len(list))
		for _, item := range list {
			fields, ok := item.(map[string]any)
			if !ok {
				return Result{}, true, fmt.Errorf("%w: %v", ErrIncompleteTransfer, item)
			}
			transfer, err := toTransfer(fields)
			if err != nil {
				return Result{}, true, err
			}
			transfers = append(transfers, transfer)
		}
		result, err := r.finish(segment, Result{Transfers: transfers})
		return result, true, err
	}
	if skip, ok := config.Answer(segment.ID, "skip"); ok && rules.Truthy(rules.Normalize(skip)) {
		return Result{Transfers: []model.AssetTransfer{}, Skipped: true}, true, nil
	}
	return Result{}, false, nil
}

// answers collects the answers to the questions of a rule. Questions without
// an answer are returned as queries.
func (r *Resolver) answers(segment model.SegmentID, line model.TextFileLine, rule ImportRule, config model.ImportConfig) (map[string]any, []Query) {
	answers := make(map[string]any, len(rule.Questions))
	var missing []Query
	variables := make([]string, 0, len(rule.Questions))
	for variable := range rule.Questions {
		variables = append(variables, variable)
	}
	sort.Strings(variables)

	for _, variable := range variables {
		if answer, ok := config.Answer(segment, variable); ok {
			answers[variable] = answer
			continue
		}
		q := rule.Questions[variable]
		missing = append(missing, Query{
			Segment:  segment,
			Kind:     QueryQuestion,
			Name:     fmt.Sprintf("answer.%s.%s", segment, variable),
			Variable: variable,
			Rule:     rule.Name,
			Question: &q,
			Text:     line.Text,
			Line:     line.Line,
		})
	}
	return answers, missing
}

// results evaluates every result record of a firing rule.
func (r *Resolver) results(ctx context.Context, rule ImportRule, values, answers map[string]any) ([]model.AssetTransfer, error) {
	scope := make(map[string]any, len(values)+len(answers))
	for k, v := range values {
		scope[k] = v
	}
	for k, v := range answers {
		scope[k] = v
	}

	var transfers []model.AssetTransfer
	for i, record := range rule.Result {
		fields := make(map[string]any, len(record))
		names := make([]string, 0, len(record))
		for name := range record {
			if name != "if" {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			v, err := r.engine.Eval(ctx, record[name], scope)
			if err != nil {
				return nil, fmt.Errorf("rule '%s' result[%d].%s: %w", rule.Name, i, name, err)
			}
			fields[name] = v
		}
		if condition, ok := record["if"]; ok {
			v, err := r.engine.Eval(ctx, condition, scope)
			if err != nil {
				return nil, fmt.Errorf("rule '%s' result[%d].if: %w", rule.Name, i, err)
			}
			if !rules.Truthy(v) {
				r.logger.Debug("Transfer dropped by condition", "rule", rule.Name, "index", i)
				continue
			}
		}
		transfer, err := toTransfer(fields)
		if err != nil {
			return nil, fmt.Errorf("rule '%s': %w", rule.Name, err)
		}
		transfers = append(transfers, transfer)
	}
	return transfers, nil
}

func ruleVariables(line model.TextFileLine, lineValues []any, config model.ImportConfig, rule ImportRule) map[string]any {
	values := make(map[string]any, len(line.Columns)+6)
	for k, v := range line.Columns {
		values[k] = v
	}
	values["lines"] = lineValues
	values["config"] = map[string]any(config)
	values["rule"] = rule
	values["options"] = rule.Options
	values["text"] = line.Text
	values["lineNumber"] = line.Line
	return values
}

// withNamedQuestions replaces question references of the rules with the
// questions defined once under "questions" in the configuration.
func withNamedQuestions(ruleList []ImportRule, config model.ImportConfig) ([]ImportRule, error) {
	raw, ok := config["questions"]
	if !ok || raw == nil {
		return ruleList, nil
	}
	var list []Question
	if err := decodeJSON(raw, &list); err != nil {
		return nil, fmt.Errorf("invalid questions: %w", err)
	}
	named := make(map[string]Question, len(list))
	for _, q := range list {
		if q.Name != "" {
			named[q.Name] = q
		}
	}

	out := make([]ImportRule, len(ruleList))
	for i, rule := range ruleList {
		if len(rule.Questions) > 0 {
			questions := make(map[string]Question, len(rule.Questions))
			for variable, q := range rule.Questions {
				full, err := resolveQuestion(q, named)
				if err != nil {
					return nil, fmt.Errorf("rule '%s': %w", rule.Name, err)
				}
				questions[variable] = full
			}
			rule.Questions = questions
		}
		out[i] = rule
	}
	return out, nil
}

func resolveQuestion(q Question, named map[string]Question) (Question, error) {
	isRef := q.Name != "" && q.Label == "" && q.Text == "" && q.Type == "" && len(q.Ask) == 0
	if !isRef {
		return q, nil
	}
	full, ok := named[q.Name]
	if !ok {
		return Question{}, fmt.Errorf("%w: '%s'", ErrUnknownQuestion, q.Name)
	}
	return full, nil
}

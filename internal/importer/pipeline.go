// Package importer drives one import batch through segmentation,
// classification, analysis and execution. The state of a batch is a value of
// one of the stage types and every change to it goes through Dispatch.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-ledger/internal/classification"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/knowledge"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/rules"
	"github.com/Veraticus/spice-ledger/internal/service"
)

var (
	// ErrInvalidStageTransition is returned for operations that do not lead out of the current stage.
	ErrInvalidStageTransition = errors.New("invalid stage transition")
	// ErrProcessFinished is returned for any action on an executed or rolled back import
	// other than a rollback of an executed one.
	ErrProcessFinished = errors.New("import is already finished")
	// ErrMissingConnector is returned by New without a connector.
	ErrMissingConnector = errors.New("import connector is required")
)

// Deps are the collaborators of a pipeline.
type Deps struct {
	Connector service.Connector
	Engine    *rules.Engine
	Knowledge *knowledge.Base
	Balances  *ledger.Balances
	Stock     *ledger.Stock
	Logger    *slog.Logger
}

// Pipeline runs the stage operations of imports. The ledgers it holds are
// only changed by execution and rollback.
type Pipeline struct {
	connector service.Connector
	resolver  *classification.Resolver
	knowledge *knowledge.Base
	balances  *ledger.Balances
	stock     *ledger.Stock
	logger    *slog.Logger
	cfg       Config
}

// New creates a pipeline for files described by cfg.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Connector == nil {
		return nil, ErrMissingConnector
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Knowledge == nil {
		deps.Knowledge = knowledge.Empty()
	}
	if deps.Engine == nil {
		deps.Engine = rules.New(rules.WithLogger(deps.Logger))
	}
	if deps.Balances == nil {
		deps.Balances = ledger.NewBalances(deps.Logger)
	}
	if deps.Stock == nil {
		deps.Stock = ledger.NewStock(deps.Logger)
	}
	return &Pipeline{
		connector: deps.Connector,
		resolver:  classification.NewResolver(deps.Engine, deps.Knowledge, deps.Logger),
		knowledge: deps.Knowledge,
		balances:  deps.Balances,
		stock:     deps.Stock,
		logger:    deps.Logger,
		cfg:       cfg,
	}, nil
}

// Balances returns the balance ledger changed by execution.
func (p *Pipeline) Balances() *ledger.Balances { return p.balances }

// Stock returns the stock ledger changed by execution.
func (p *Pipeline) Stock() *ledger.Stock { return p.stock }

// Config returns the file format settings.
func (p *Pipeline) Config() Config { return p.cfg }

// Dispatch applies one action to an import and returns the new state, the
// new configuration and the directions for continuing. Invalid actions are
// rejected before anything changes. When a stage needs user input the state
// is returned unchanged with UI directions and a nil error.
func (p *Pipeline) Dispatch(ctx context.Context, processID int64, state State, config model.ImportConfig, action Action) (State, model.ImportConfig, Directions, error) {
	if err := action.Validate(); err != nil {
		return state, config, Directions{}, err
	}
	if state == nil {
		return state, config, Directions{}, fmt.Errorf("%w: no state", common.ErrBadState)
	}
	if config == nil {
		config = model.ImportConfig{}
	}

	if action.Rollback {
		executed, ok := state.(*ExecutedState)
		if !ok {
			if state.Stage() == StageRolledBack {
				return state, config, Directions{}, fmt.Errorf("%w: cannot roll back twice", ErrProcessFinished)
			}
			return state, config, Directions{}, fmt.Errorf("%w: rollback from %s", ErrInvalidStageTransition, state.Stage())
		}
		next, err := p.rollback(ctx, processID, executed)
		if err != nil {
			return state, config, Directions{}, err
		}
		return next, config, completeDirections(), nil
	}

	if isFinished(state) {
		return state, config, Directions{}, fmt.Errorf("%w: %s in stage %s", ErrProcessFinished, action, state.Stage())
	}

	switch {
	case action.Configure != nil:
		config = config.Merge(action.Configure)
		directions, err := p.GetDirections(ctx, state, config)
		return state, config, directions, err
	case action.Answer != nil:
		config = config.WithAnswers(action.Answer)
		directions, err := p.GetDirections(ctx, state, config)
		return state, config, directions, err
	}

	op, _ := nextOp(state)
	if action.Op != "" && action.Op != op {
		return state, config, Directions{}, fmt.Errorf("%w: %s from %s", ErrInvalidStageTransition, action.Op, state.Stage())
	}

	p.logger.Info("Running import operation", "process", processID, "op", op, "stage", state.Stage())
	next, err := p.run(ctx, processID, op, state, config)
	var need *inputNeeded
	if errors.As(err, &need) {
		p.logger.Info("Import needs input", "process", processID, "op", op, "queries", len(need.queries))
		return state, config, uiDirections(need.element, need.queries), nil
	}
	if err != nil {
		return state, config, Directions{}, fmt.Errorf("%s failed: %w", op, err)
	}
	directions, err := p.GetDirections(ctx, next, config)
	return next, config, directions, err
}

func (p *Pipeline) run(ctx context.Context, processID int64, op Op, state State, config model.ImportConfig) (State, error) {
	switch op {
	case OpSegmentation:
		return p.segmentation(state.(*InitialState))
	case OpClassification:
		return p.classification(ctx, state.(*SegmentedState), config)
	case OpAnalysis:
		return p.analysis(ctx, state.(*ClassifiedState), config)
	case OpExecution:
		return p.execution(ctx, processID, state.(*AnalyzedState), config)
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidStageTransition, op)
}

// GetDirections tells how the import in state continues under config.
func (p *Pipeline) GetDirections(ctx context.Context, state State, config model.ImportConfig) (Directions, error) {
	if isFinished(state) {
		return completeDirections(), nil
	}
	if s, ok := state.(*ClassifiedState); ok {
		queries, err := p.needInputForAnalysis(ctx, s, config)
		if err != nil {
			return Directions{}, err
		}
		if len(queries) > 0 {
			return uiDirections(ElementAccounts, queries), nil
		}
	}
	op, _ := nextOp(state)
	return actionDirections(op), nil
}

func nextOp(state State) (Op, bool) {
	switch state.(type) {
	case *InitialState:
		return OpSegmentation, true
	case *SegmentedState:
		return OpClassification, true
	case *ClassifiedState:
		return OpAnalysis, true
	case *AnalyzedState:
		return OpExecution, true
	}
	return "", false
}

func isFinished(state State) bool {
	_, ok := nextOp(state)
	return !ok
}

func (p *Pipeline) classification(ctx context.Context, s *SegmentedState, config model.ImportConfig) (*ClassifiedState, error) {
	ruleList, err := classification.DecodeRules(config[model.ConfigRules])
	if err != nil {
		return nil, err
	}

	next := &ClassifiedState{
		SegmentedState: *s,
		Result:         make(map[model.SegmentID]model.TransactionDescription, len(s.Segments)),
	}
	var queries []Query
	for _, segment := range model.SortSegments(s.Segments) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := p.resolver.Resolve(ctx, segment, s.Lines(segment.ID), ruleList, config)
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", segment.ID, err)
		}
		if result.NeedsInput() {
			queries = append(queries, classificationQueries(result.Queries)...)
			continue
		}
		if result.Skipped {
			next.Skipped = append(next.Skipped, segment.ID)
		}
		next.Result[segment.ID] = result.Description()
	}
	if len(queries) > 0 {
		return nil, &inputNeeded{element: ElementClassification, queries: queries}
	}

	p.logger.Info("Classification done", "segments", len(next.Result), "skipped", len(next.Skipped))
	return next, nil
}

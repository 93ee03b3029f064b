package importer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Stage names the progress of an import.
type Stage string

// Import stages.
const (
	StageInitial    Stage = "initial"
	StageSegmented  Stage = "segmented"
	StageClassified Stage = "classified"
	StageAnalyzed   Stage = "analyzed"
	StageExecuted   Stage = "executed"
	StageRolledBack Stage = "rolledback"
)

// State is the state of one import. Every stage has its own type and each
// later stage embeds the one before it, so nothing an earlier stage produced
// is ever lost.
type State interface {
	Stage() Stage
	isState()
}

// InitialState holds the raw files.
type InitialState struct {
	Files map[string]model.ImportFile `json:"files"`
}

// SegmentedState adds the parsed lines and their grouping into segments.
type SegmentedState struct {
	Parsed   map[string]model.ImportFile               `json:"parsed"`
	Segments map[model.SegmentID]model.ImportSegment `json:"segments"`
	InitialState
}

// ClassifiedState adds the transfers found by the rules for every segment.
type ClassifiedState struct {
	Result  map[model.SegmentID]model.TransactionDescription `json:"result"`
	Skipped []model.SegmentID                               `json:"skipped,omitempty"`
	SegmentedState
}

// AnalyzedState adds valued transfers and the transactions built from them.
// Custom holds segments created from answers rather than from the files.
type AnalyzedState struct {
	Custom       map[model.SegmentID]model.ImportSegment          `json:"custom,omitempty"`
	Analyzed     map[model.SegmentID]model.TransactionDescription `json:"analyzed"`
	Transactions map[model.SegmentID][]model.Transaction          `json:"transactions"`
	ClassifiedState
}

// ExecutedState adds the execution results and the summary of applied changes.
type ExecutedState struct {
	Executed map[model.SegmentID][]model.Transaction `json:"executed"`
	Output   ledger.ApplyResultsJSON                 `json:"output"`
	AnalyzedState
}

// RolledBackState adds the transactions reverted by a rollback.
type RolledBackState struct {
	Reverted map[model.SegmentID][]model.Transaction `json:"reverted"`
	ExecutedState
}

// Stage implements State.
func (*InitialState) Stage() Stage { return StageInitial }

// Stage implements State.
func (*SegmentedState) Stage() Stage { return StageSegmented }

// Stage implements State.
func (*ClassifiedState) Stage() Stage { return StageClassified }

// Stage implements State.
func (*AnalyzedState) Stage() Stage { return StageAnalyzed }

// Stage implements State.
func (*ExecutedState) Stage() Stage { return StageExecuted }

// Stage implements State.
func (*RolledBackState) Stage() Stage { return StageRolledBack }

func (*InitialState) isState()    {}
func (*SegmentedState) isState()  {}
func (*ClassifiedState) isState() {}
func (*AnalyzedState) isState()   {}
func (*ExecutedState) isState()   {}
func (*RolledBackState) isState() {}

// NewState creates the initial state of an import from its files.
func NewState(files ...model.ImportFile) *InitialState {
	s := &InitialState{Files: make(map[string]model.ImportFile, len(files))}
	for _, f := range files {
		s.Files[f.Name] = f.Clone()
	}
	return s
}

// FileNames returns the file names in sorted order.
func (s *InitialState) FileNames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lines returns the parsed lines of a segment.
func (s *SegmentedState) Lines(id model.SegmentID) []model.TextFileLine {
	segment, ok := s.Segments[id]
	if !ok {
		return nil
	}
	lines := make([]model.TextFileLine, 0, len(segment.Lines))
	for _, ref := range segment.Lines {
		file, ok := s.Parsed[ref.File]
		if !ok || ref.Number < 0 || ref.Number >= len(file.Lines) {
			continue
		}
		lines = append(lines, file.Lines[ref.Number])
	}
	return lines
}

// EncodeState serializes a state with its stage name.
func EncodeState(s State) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s state: %w", s.Stage(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode %s state: %w", s.Stage(), err)
	}
	stage, _ := json.Marshal(s.Stage())
	fields["stage"] = stage
	return json.Marshal(fields)
}

// DecodeState restores a state serialized by EncodeState.
func DecodeState(data []byte) (State, error) {
	var header struct {
		Stage Stage `json:"stage"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}

	var s State
	switch header.Stage {
	case StageInitial:
		s = &InitialState{}
	case StageSegmented:
		s = &SegmentedState{}
	case StageClassified:
		s = &ClassifiedState{}
	case StageAnalyzed:
		s = &AnalyzedState{}
	case StageExecuted:
		s = &ExecutedState{}
	case StageRolledBack:
		s = &RolledBackState{}
	default:
		return nil, fmt.Errorf("failed to decode state: unknown stage %q", header.Stage)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to decode %s state: %w", header.Stage, err)
	}
	return s, nil
}

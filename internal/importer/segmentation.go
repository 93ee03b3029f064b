package importer

import (
	"crypto/sha1" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/rules"
)

// Derived columns added by segmentation.
const (
	ColumnText        = "_textField"
	ColumnTotalAmount = "_totalAmountField"
	ColumnExtra       = "+"
)

func (p *Pipeline) segmentation(s *InitialState) (*SegmentedState, error) {
	next := &SegmentedState{
		InitialState: *s,
		Parsed:       make(map[string]model.ImportFile, len(s.Files)),
		Segments:     make(map[model.SegmentID]model.ImportSegment),
	}

	for _, name := range s.FileNames() {
		file := s.Files[name]
		var (
			lines []model.TextFileLine
			err   error
		)
		switch p.cfg.Parser {
		case ParserCustom:
			lines = file.Clone().Lines
		default:
			lines, err = p.parseCSV(file)
		}
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", name, err)
		}

		for i, line := range lines {
			if !line.HasColumns() {
				continue
			}
			id := SegmentIDOf(line.Columns, p.cfg.SegmentColumns)
			lines[i] = line.WithSegment(id)
			segment := next.Segments[id]
			segment.ID = id
			segment.Lines = append(segment.Lines, model.SegmentLine{File: name, Number: i})
			next.Segments[id] = segment
		}

		parsed := file
		parsed.Lines = lines
		next.Parsed[name] = parsed
	}

	if err := p.segmentTimes(next); err != nil {
		return nil, err
	}
	if err := p.postProcessSegments(next); err != nil {
		return nil, err
	}

	p.logger.Info("Segmentation done", "files", len(next.Parsed), "segments", len(next.Segments))
	return next, nil
}

// SegmentIDOf fingerprints the trimmed values of the selected columns, or of
// all columns when none are selected.
func SegmentIDOf(columns map[string]string, selected []string) model.SegmentID {
	picked := make(map[string]string, len(columns))
	if len(selected) == 0 {
		for k, v := range columns {
			picked[k] = strings.TrimSpace(v)
		}
	} else {
		for _, k := range selected {
			if v, ok := columns[k]; ok {
				picked[k] = strings.TrimSpace(v)
			}
		}
	}
	data, _ := json.Marshal(picked)
	sum := sha1.Sum(data) //nolint:gosec
	return model.SegmentID(hex.EncodeToString(sum[:]))
}

func (p *Pipeline) parseCSV(file model.ImportFile) ([]model.TextFileLine, error) {
	opts := p.cfg.CSV
	separator := []rune(opts.ColumnSeparator)[0]

	var headings []string
	out := make([]model.TextFileLine, len(file.Lines))
	for i, line := range file.Lines {
		out[i] = line.WithColumns(nil)
		if i < opts.CutFromBeginning {
			continue
		}
		text := line.Text
		if opts.TrimLines {
			text = strings.TrimSpace(text)
		}
		if text == "" {
			continue
		}

		fields, err := splitCSV(text, separator)
		if err != nil {
			if opts.SkipErrors {
				p.logger.Warn("Skipping malformed line", "file", file.Name, "line", line.Line, "error", err)
				continue
			}
			return nil, fmt.Errorf("%w: line %d: %w", common.ErrInvalidFile, line.Line, err)
		}

		if opts.UseFirstLineHeadings && headings == nil {
			headings = uniqueHeadings(fields)
			continue
		}

		columns := make(map[string]string, len(fields))
		for j, field := range fields {
			switch {
			case headings == nil:
				columns[strconv.Itoa(j)] = field
			case j < len(headings):
				columns[headings[j]] = field
			case columns[ColumnExtra] == "":
				columns[ColumnExtra] = field
			default:
				columns[ColumnExtra] += "\n" + field
			}
		}
		out[i] = line.WithColumns(columns)
	}
	return out, nil
}

func splitCSV(text string, separator rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = separator
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

// uniqueHeadings names repeated headings X, X2, X3 and so on.
func uniqueHeadings(fields []string) []string {
	seen := make(map[string]int, len(fields))
	out := make([]string, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s%d", name, n)
		}
		out[i] = name
	}
	return out
}

// segmentTimes sets the time of every segment. All lines of a segment that
// carry a time must agree on it.
func (p *Pipeline) segmentTimes(s *SegmentedState) error {
	loc, err := p.cfg.location()
	if err != nil {
		return err
	}
	for id, segment := range s.Segments {
		var stamps []time.Time
		for _, line := range s.Lines(id) {
			raw := strings.TrimSpace(line.Columns[p.cfg.TimeColumn])
			if raw == "" {
				continue
			}
			t, err := time.ParseInLocation(p.cfg.TimeFormat, raw, loc)
			if err != nil {
				return fmt.Errorf("%w: line %d: bad time %q: %w", common.ErrInvalidFile, line.Line, raw, err)
			}
			if !containsTime(stamps, t) {
				stamps = append(stamps, t)
			}
		}
		switch len(stamps) {
		case 0:
			return fmt.Errorf("%w: no timestamp in segment %s", common.ErrInvalidFile, id)
		case 1:
			segment.Time = stamps[0]
			s.Segments[id] = segment
		default:
			return fmt.Errorf("%w: segment %s has %d different timestamps", common.ErrInvalidFile, id, len(stamps))
		}
	}
	return nil
}

func containsTime(list []time.Time, t time.Time) bool {
	for _, x := range list {
		if x.Equal(t) {
			return true
		}
	}
	return false
}

// postProcessSegments fills required fields, normalizes numeric fields, copies
// non-empty shared fields over the segment and adds the derived text and total
// columns.
func (p *Pipeline) postProcessSegments(s *SegmentedState) error {
	shared := make(map[model.SegmentID]map[string]string)

	for _, name := range s.FileNames() {
		file := s.Parsed[name]
		for n, line := range file.Lines {
			if !line.HasColumns() {
				continue
			}
			columns := line.Columns
			for _, field := range p.cfg.RequiredFields {
				if _, ok := columns[field]; !ok {
					columns[field] = ""
				}
			}
			for _, field := range p.cfg.NumericFields {
				v, ok := columns[field]
				if !ok {
					continue
				}
				if strings.TrimSpace(v) == "" {
					columns[field] = "0"
					continue
				}
				number := rules.Num(v)
				if math.IsNaN(number) {
					return fmt.Errorf("%w: line %d: field %s is not a number: %q", common.ErrInvalidFile, line.Line, field, v)
				}
				columns[field] = rules.ToString(number)
			}
			for _, field := range p.cfg.SharedFields {
				v := columns[field]
				if v == "" {
					continue
				}
				if shared[line.SegmentID] == nil {
					shared[line.SegmentID] = make(map[string]string)
				}
				if old, found := shared[line.SegmentID][field]; found && old != v {
					return fmt.Errorf("%w: shared field %s has values %q and %q in segment %s",
						common.ErrInvalidFile, field, old, v, line.SegmentID)
				}
				shared[line.SegmentID][field] = v
			}
			if p.cfg.TextField != "" {
				columns[ColumnText] = columns[p.cfg.TextField]
			}
			if p.cfg.TotalAmountField != "" {
				columns[ColumnTotalAmount] = columns[p.cfg.TotalAmountField]
			}
			file.Lines[n] = line
		}
	}

	for _, file := range s.Parsed {
		for _, line := range file.Lines {
			for k, v := range shared[line.SegmentID] {
				line.Columns[k] = v
			}
		}
	}
	return nil
}

package model

import (
	"sort"
	"time"
)

// SegmentID identifies a segment uniquely within one import batch.
type SegmentID string

// TextFileLine is one row of raw imported data.
type TextFileLine struct {
	Columns   map[string]string `json:"columns"`
	Text      string            `json:"text"`
	SegmentID SegmentID         `json:"segmentId,omitempty"`
	Line      int               `json:"line"`
}

// HasColumns reports whether the line carries any parsed column.
func (l TextFileLine) HasColumns() bool {
	return len(l.Columns) > 0
}

// WithColumns returns a copy of the line using the given columns.
func (l TextFileLine) WithColumns(columns map[string]string) TextFileLine {
	l.Columns = copyColumns(columns)
	return l
}

// WithSegment returns a copy of the line assigned to the segment.
func (l TextFileLine) WithSegment(id SegmentID) TextFileLine {
	l.Columns = copyColumns(l.Columns)
	l.SegmentID = id
	return l
}

// ColumnNames returns the column names of the line in sorted order.
func (l TextFileLine) ColumnNames() []string {
	names := make([]string, 0, len(l.Columns))
	for name := range l.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func copyColumns(columns map[string]string) map[string]string {
	out := make(map[string]string, len(columns))
	for k, v := range columns {
		out[k] = v
	}
	return out
}

// ImportFile holds the lines of one source file.
type ImportFile struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Encoding string         `json:"encoding,omitempty"`
	Lines    []TextFileLine `json:"lines"`
}

// Clone returns a deep copy of the file.
func (f ImportFile) Clone() ImportFile {
	lines := make([]TextFileLine, len(f.Lines))
	for i, line := range f.Lines {
		lines[i] = line.WithSegment(line.SegmentID)
	}
	f.Lines = lines
	return f
}

// SegmentLine points to one line of a file.
type SegmentLine struct {
	File   string `json:"file"`
	Number int    `json:"number"`
}

// ImportSegment groups the lines forming one semantic unit.
type ImportSegment struct {
	Time  time.Time     `json:"time"`
	ID    SegmentID     `json:"id"`
	Lines []SegmentLine `json:"lines"`
}

// SortSegments returns segments ordered by time, then by id.
func SortSegments(segments map[SegmentID]ImportSegment) []ImportSegment {
	out := make([]ImportSegment, 0, len(segments))
	for _, s := range segments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

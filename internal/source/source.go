// Package source reads import files from disk into the line form the import
// pipeline works on. Plain text and CSV files keep their raw lines, while
// OFX, PDF and JSON files are turned into lines that already carry columns.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Kind is the format of a source file.
type Kind string

// Supported kinds.
const (
	KindCSV  Kind = "csv"
	KindText Kind = "text"
	KindOFX  Kind = "ofx"
	KindPDF  Kind = "pdf"
	KindJSON Kind = "json"
)

// Columns produced for files that are not plain text.
const (
	ColumnDate        = "date"
	ColumnDescription = "description"
	ColumnAmount      = "amount"
	ColumnID          = "id"
)

// ErrUnknownKind is returned for file kinds without a reader.
var ErrUnknownKind = errors.New("unknown source kind")

// Option configures reading.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	jsonColumns map[string]string
	jsonRecords string
}

// WithLogger sets the logger used while reading.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithJSONRecords sets the JSONPath selecting the records of a JSON file.
func WithJSONRecords(path string) Option {
	return func(o *options) { o.jsonRecords = path }
}

// WithJSONColumns maps column names to JSONPath expressions evaluated on
// each record of a JSON file.
func WithJSONColumns(columns map[string]string) Option {
	return func(o *options) { o.jsonColumns = columns }
}

type readFunc func(name string, data []byte, o *options) (model.ImportFile, error)

var readers = map[Kind]readFunc{
	KindCSV:  readText("text/csv"),
	KindText: readText("text/plain"),
	KindOFX:  readOFX,
	KindPDF:  readPDF,
	KindJSON: readJSON,
}

// KindOf guesses the kind of a file from its extension.
func KindOf(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return KindOFX
	case ".pdf":
		return KindPDF
	case ".json":
		return KindJSON
	case ".csv", ".tsv":
		return KindCSV
	default:
		return KindText
	}
}

// Read loads the file at path. An empty kind is guessed from the extension.
func Read(path string, kind Kind, opts ...Option) (model.ImportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ImportFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if kind == "" {
		kind = KindOf(path)
	}
	return ReadBytes(filepath.Base(path), data, kind, opts...)
}

// ReadBytes converts the content of a file named name.
func ReadBytes(name string, data []byte, kind Kind, opts ...Option) (model.ImportFile, error) {
	o := &options{logger: slog.Default(), jsonRecords: "$[*]"}
	for _, opt := range opts {
		opt(o)
	}
	read, ok := readers[kind]
	if !ok {
		return model.ImportFile{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	file, err := read(name, data, o)
	if err != nil {
		return model.ImportFile{}, err
	}
	o.logger.Info("Read source file", "name", name, "kind", kind, "lines", len(file.Lines))
	return file, nil
}

// ImportConfig returns the pipeline settings matching the lines produced for
// kind. Text and CSV files use the defaults and are usually configured per bank.
func ImportConfig(kind Kind) importer.Config {
	cfg := importer.DefaultConfig()
	switch kind {
	case KindOFX, KindJSON:
		cfg.Parser = importer.ParserCustom
		cfg.TimeColumn = ColumnDate
		cfg.TextField = ColumnDescription
		cfg.NumericFields = []string{ColumnAmount}
		cfg.TotalAmountField = ColumnAmount
		if kind == KindOFX {
			cfg.SegmentColumns = []string{ColumnID}
		}
	}
	return cfg
}

func readText(mime string) readFunc {
	return func(name string, data []byte, _ *options) (model.ImportFile, error) {
		text, encoding := decode(data)
		return model.ImportFile{
			Name:     name,
			Type:     mime,
			Encoding: encoding,
			Lines:    textLines(text),
		}, nil
	}
}

// decode returns the text of data. Content that is not valid UTF-8 is read
// as Latin-1.
func decode(data []byte) (string, string) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), "iso-8859-1"
}

// textLines splits text into numbered lines. A final empty line is dropped.
func textLines(text string) []model.TextFileLine {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	lines := make([]model.TextFileLine, len(parts))
	for i, part := range parts {
		lines[i] = model.TextFileLine{Line: i, Text: strings.TrimSuffix(part, "\r")}
	}
	return lines
}

// columnLines numbers rows of columns and gives each a text built from
// the listed columns.
func columnLines(rows []map[string]string, textColumns []string) []model.TextFileLine {
	lines := make([]model.TextFileLine, len(rows))
	for i, row := range rows {
		parts := make([]string, 0, len(textColumns))
		for _, c := range textColumns {
			if v := row[c]; v != "" {
				parts = append(parts, v)
			}
		}
		lines[i] = model.TextFileLine{Line: i, Text: strings.Join(parts, ","), Columns: row}
	}
	return lines
}

func invalid(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", common.ErrInvalidFile, name, err)
}

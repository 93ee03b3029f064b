package importer

import (
	"fmt"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
)

// Parsers for segmentation.
const (
	ParserCSV    = "csv"
	ParserCustom = "custom"
)

// CSVOptions controls how raw lines are split into columns.
type CSVOptions struct {
	ColumnSeparator      string `mapstructure:"column_separator" json:"columnSeparator,omitempty"`
	CutFromBeginning     int    `mapstructure:"cut_from_beginning" json:"cutFromBeginning,omitempty"`
	TrimLines            bool   `mapstructure:"trim_lines" json:"trimLines,omitempty"`
	UseFirstLineHeadings bool   `mapstructure:"use_first_line_headings" json:"useFirstLineHeadings,omitempty"`
	SkipErrors           bool   `mapstructure:"skip_errors" json:"skipErrors,omitempty"`
}

// Config describes the format of the files one importer handles.
type Config struct {
	CSV CSVOptions `mapstructure:"csv" json:"csv"`

	// Parser is "csv" for raw lines or "custom" for lines that already carry columns.
	Parser string `mapstructure:"parser" json:"parser"`
	// Exchange names the service the data comes from in transaction texts.
	Exchange string `mapstructure:"exchange" json:"exchange,omitempty"`

	// SegmentColumns select the columns hashed into the segment id. Empty uses all.
	SegmentColumns []string `mapstructure:"segment_columns" json:"segmentColumns,omitempty"`
	TimeColumn     string   `mapstructure:"time_column" json:"timeColumn"`
	TimeFormat     string   `mapstructure:"time_format" json:"timeFormat,omitempty"`
	TimeZone       string   `mapstructure:"time_zone" json:"timeZone,omitempty"`

	RequiredFields   []string `mapstructure:"required_fields" json:"requiredFields,omitempty"`
	NumericFields    []string `mapstructure:"numeric_fields" json:"numericFields,omitempty"`
	SharedFields     []string `mapstructure:"shared_fields" json:"sharedFields,omitempty"`
	TextField        string   `mapstructure:"text_field" json:"textField,omitempty"`
	TotalAmountField string   `mapstructure:"total_amount_field" json:"totalAmountField,omitempty"`

	Retry common.RetryOptions `mapstructure:"-" json:"-"`
}

// DefaultConfig returns settings for comma separated files with headings and
// an ISO date column named "date".
func DefaultConfig() Config {
	return Config{
		Parser: ParserCSV,
		CSV: CSVOptions{
			ColumnSeparator:      ",",
			TrimLines:            true,
			UseFirstLineHeadings: true,
		},
		TimeColumn: "date",
		TimeFormat: time.DateOnly,
	}
}

// Validate checks the settings and fills in defaults.
func (c *Config) Validate() error {
	if c.Parser == "" {
		c.Parser = ParserCSV
	}
	if c.Parser != ParserCSV && c.Parser != ParserCustom {
		return fmt.Errorf("%w: unknown parser %q", common.ErrInvalidConfig, c.Parser)
	}
	if c.CSV.ColumnSeparator == "" {
		c.CSV.ColumnSeparator = ","
	}
	if len([]rune(c.CSV.ColumnSeparator)) != 1 {
		return fmt.Errorf("%w: column separator must be one character, got %q", common.ErrInvalidConfig, c.CSV.ColumnSeparator)
	}
	if c.CSV.CutFromBeginning < 0 {
		return fmt.Errorf("%w: negative cut_from_beginning", common.ErrInvalidConfig)
	}
	if c.TimeColumn == "" {
		return fmt.Errorf("%w: time_column is required", common.ErrMissingConfig)
	}
	if c.TimeFormat == "" {
		c.TimeFormat = time.DateOnly
	}
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

func (c Config) location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: time zone %q: %w", common.ErrInvalidConfig, c.TimeZone, err)
	}
	return loc, nil
}

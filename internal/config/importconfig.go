package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/source"
)

// ImportSettings describe how files of one bank or broker are imported.
//
// A settings file has three sections:
//
//	format:   file format for segmentation (csv options, time column, ...)
//	source:   reader options (kind, JSON records and columns)
//	import:   the initial process configuration (currency, accounts, rules)
type ImportSettings struct {
	Config      model.ImportConfig
	JSONColumns map[string]string
	Kind        source.Kind
	JSONRecords string
	Format      importer.Config
}

// SourceOptions returns the reader options for the settings.
func (s *ImportSettings) SourceOptions() []source.Option {
	var opts []source.Option
	if s.JSONRecords != "" {
		opts = append(opts, source.WithJSONRecords(s.JSONRecords))
	}
	if len(s.JSONColumns) > 0 {
		opts = append(opts, source.WithJSONColumns(s.JSONColumns))
	}
	return opts
}

// DefaultImportSettings returns the settings used without a settings file.
func DefaultImportSettings(kind source.Kind) *ImportSettings {
	return &ImportSettings{
		Kind:   kind,
		Format: source.ImportConfig(kind),
		Config: model.ImportConfig{},
	}
}

// LoadImportConfig reads a YAML, JSON or TOML settings file. The format
// section is read through viper. The source and import sections keep the case
// of their keys, since account addresses and column names are case sensitive.
func LoadImportConfig(path string, kind source.Kind) (*ImportSettings, error) {
	path = ExpandPath(path)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", common.ErrInvalidConfig, path, err)
	}

	if kind == "" {
		kind = source.Kind(v.GetString("source.kind"))
	}
	settings := DefaultImportSettings(kind)
	if err := v.UnmarshalKey("format", &settings.Format); err != nil {
		return nil, fmt.Errorf("%w: format section: %w", common.ErrInvalidConfig, err)
	}
	settings.Format.Retry = common.RetryOptions{
		MaxAttempts:  v.GetInt("retry.max_attempts"),
		InitialDelay: v.GetDuration("retry.initial_delay"),
		MaxDelay:     v.GetDuration("retry.max_delay"),
	}
	if err := settings.Format.Validate(); err != nil {
		return nil, err
	}

	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	if src, ok := raw["source"].(map[string]any); ok {
		if records, ok := src["records"].(string); ok {
			settings.JSONRecords = records
		}
		if columns, ok := src["columns"].(map[string]any); ok {
			settings.JSONColumns = make(map[string]string, len(columns))
			for column, expr := range columns {
				settings.JSONColumns[column] = fmt.Sprint(expr)
			}
		}
	}
	if imp, ok := raw["import"].(map[string]any); ok {
		settings.Config = model.ImportConfig(imp)
	}
	return settings, nil
}

// readRaw decodes a settings file into plain maps with JSON value types.
func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &doc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: unsupported settings file %s", common.ErrInvalidConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, path, err)
	}

	// Normalize numbers and nested maps to the types JSON decoding gives.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, path, err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(normalized, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidConfig, path, err)
	}
	return out, nil
}

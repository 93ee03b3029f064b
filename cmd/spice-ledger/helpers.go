package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/knowledge"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/process"
	"github.com/Veraticus/spice-ledger/internal/source"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// Keys the CLI adds to the configuration of a process.
const (
	configPlugin   = "plugin"
	configSettings = "settings"
)

// initStorage opens the database and runs the migrations.
func initStorage(ctx context.Context, opts ...storage.Option) (*storage.SQLiteStorage, error) {
	dbPath := config.DatabasePath(viper.GetString("database.path"))

	opts = append([]storage.Option{storage.WithLogger(slog.Default())}, opts...)
	store, err := storage.NewSQLiteStorage(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// loadKnowledge reads the knowledge file named in the configuration.
func loadKnowledge() (*knowledge.Base, error) {
	path := viper.GetString("knowledge.path")
	if path == "" {
		return knowledge.Empty(), nil
	}
	kb, err := knowledge.LoadFile(config.ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge: %w", err)
	}
	return kb, nil
}

// settingsFile resolves an importer name to its settings file.
func settingsFile(name string) string {
	return config.SettingsPath(viper.GetString("config.dir"), name)
}

// pluginName is the importer name recorded in account data.
func pluginName(settings string) string {
	base := filepath.Base(settings)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// app holds the collaborators of the process commands.
type app struct {
	store    *storage.SQLiteStorage
	pipeline *importer.Pipeline
	runner   *process.Runner
}

// openApp opens storage and builds a runner for files described by format.
// The stock ledger is rebuilt from the stored transactions.
func openApp(ctx context.Context, format importer.Config, opts ...process.Option) (*app, error) {
	kb, err := loadKnowledge()
	if err != nil {
		return nil, err
	}
	store, err := initStorage(ctx, storage.WithKnowledge(kb), storage.WithPlugin("", viper.GetBool("accounts.strict")))
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, store, kb, format, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, store *storage.SQLiteStorage, kb *knowledge.Base, format importer.Config, opts ...process.Option) (*app, error) {
	logger := slog.Default()

	stock := ledger.NewStock(logger)
	if err := store.LoadStock(ctx, stock); err != nil {
		return nil, fmt.Errorf("failed to load stock: %w", err)
	}

	pipeline, err := importer.New(format, importer.Deps{
		Connector: store,
		Knowledge: kb,
		Stock:     stock,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	manager, err := store.NewCheckpointManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint manager: %w", err)
	}
	checkpoint := func(ctx context.Context, operation string) error {
		_, err := manager.AutoCheckpoint(ctx, operation)
		return err
	}
	opts = append([]process.Option{process.WithCheckpoint(checkpoint)}, opts...)

	return &app{
		store:    store,
		pipeline: pipeline,
		runner:   process.New(store, pipeline, logger, opts...),
	}, nil
}

// openProcessApp opens the app with the format the process was created with.
func openProcessApp(ctx context.Context, id int64, opts ...process.Option) (*app, *model.Process, error) {
	kb, err := loadKnowledge()
	if err != nil {
		return nil, nil, err
	}
	store, err := initStorage(ctx, storage.WithKnowledge(kb), storage.WithPlugin("", viper.GetBool("accounts.strict")))
	if err != nil {
		return nil, nil, err
	}
	p, err := store.GetProcess(ctx, id)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to load process %d: %w", id, err)
	}

	format := importer.DefaultConfig()
	if path := p.Config.String(configSettings); path != "" {
		settings, err := config.LoadImportConfig(path, "")
		if err != nil {
			slog.Warn("Failed to reload import settings, using defaults", "settings", path, "error", err)
		} else {
			format = settings.Format
		}
	}

	a, err := newApp(ctx, store, kb, format, opts...)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return a, p, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}

// loadSettings reads the named import settings. An empty name gives the
// defaults for the source kind.
func loadSettings(name string, kind source.Kind) (*config.ImportSettings, string, error) {
	if name == "" {
		return config.DefaultImportSettings(kind), "", nil
	}
	path := settingsFile(name)
	settings, err := config.LoadImportConfig(path, kind)
	if err != nil {
		return nil, "", err
	}
	return settings, path, nil
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time, now time.Time) string {
	duration := now.Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return plural(int(duration.Minutes()), "minute")
	case duration < 24*time.Hour:
		return plural(int(duration.Hours()), "hour")
	case duration < 48*time.Hour:
		return "yesterday"
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(duration.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// parseDate reads a YYYY-MM-DD flag value. Empty gives now.
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return t, nil
}

// Package storage persists import processes, the chart of accounts and the
// stored transactions in SQLite, and connects the import pipeline to them.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/knowledge"
)

// SQLiteStorage implements service.ProcessStore and service.Connector using SQLite.
type SQLiteStorage struct {
	db        *sql.DB
	knowledge *knowledge.Base
	logger    *slog.Logger
	warnings  *common.OnceLogger
	dbPath    string
	plugin    string
	strict    bool
}

// Option configures a SQLiteStorage.
type Option func(*SQLiteStorage)

// WithKnowledge sets the knowledge base used to expand account codes.
func WithKnowledge(kb *knowledge.Base) Option {
	return func(s *SQLiteStorage) {
		if kb != nil {
			s.knowledge = kb
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *SQLiteStorage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPlugin names the importer owning the accounts looked up by the
// connector. Strict makes unknown account addresses an error.
func WithPlugin(plugin string, strict bool) Option {
	return func(s *SQLiteStorage) {
		s.plugin = plugin
		s.strict = strict
	}
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{
		db:        db,
		dbPath:    dbPath,
		knowledge: knowledge.Empty(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.warnings = common.NewOnceLogger(s.logger)
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// NewCheckpointManager creates a new checkpoint manager for this storage instance.
func (s *SQLiteStorage) NewCheckpointManager() (*CheckpointManager, error) {
	return NewCheckpointManager(s.db, s.dbPath, s.logger)
}

// withTx runs fn inside a database transaction, committing when fn succeeds.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return busy(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return busy(err)
	}
	return busy(tx.Commit())
}

// busy marks errors of a locked database as retryable.
func busy(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %w", common.ErrDatabaseLocked, err),
			Retryable: true,
		}
	}
	return err
}

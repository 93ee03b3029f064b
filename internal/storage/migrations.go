package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Import processes and their steps",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS processes (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'INCOMPLETE',
					error TEXT,
					config TEXT NOT NULL DEFAULT '{}',
					files TEXT NOT NULL DEFAULT '[]',
					current_step INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_processes_status ON processes(status)`,

				`CREATE TABLE IF NOT EXISTS process_steps (
					process_id INTEGER NOT NULL,
					number INTEGER NOT NULL,
					state TEXT NOT NULL,
					action TEXT,
					directions TEXT,
					started_at DATETIME NOT NULL,
					finished_at DATETIME,
					PRIMARY KEY (process_id, number),
					FOREIGN KEY (process_id) REFERENCES processes(id) ON DELETE CASCADE
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Chart of accounts and stored transactions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS accounts (
					number TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					data TEXT NOT NULL DEFAULT '{}'
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					process_id INTEGER,
					segment_id TEXT,
					hash TEXT NOT NULL,
					date DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_hash ON transactions(hash)`,
				`CREATE INDEX idx_transactions_process ON transactions(process_id)`,

				`CREATE TABLE IF NOT EXISTS entries (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id INTEGER NOT NULL,
					account_number TEXT NOT NULL,
					amount INTEGER NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					data TEXT,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_entries_account ON entries(account_number)`,
				`CREATE INDEX idx_entries_transaction ON entries(transaction_id)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Exchange rates",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS rates (
					date DATE NOT NULL,
					asset_type TEXT NOT NULL,
					asset TEXT NOT NULL,
					currency TEXT NOT NULL,
					rate REAL NOT NULL,
					PRIMARY KEY (asset_type, asset, currency, date)
				)`,
			)
		},
	},
	{
		Version:     4,
		Description: "Checkpoint metadata",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS checkpoint_metadata (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					description TEXT,
					file_size INTEGER,
					row_counts TEXT,
					schema_version INTEGER,
					is_auto BOOLEAN DEFAULT 0,
					parent_checkpoint TEXT
				)`,
			)
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}
			if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
				return fmt.Errorf("failed to update schema version: %w", err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		s.logger.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Package testutil sets up ledger databases and import files for tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// TestDB is a migrated database with its seeded accounts.
type TestDB struct {
	Storage  *storage.SQLiteStorage
	t        *testing.T
	Path     string
	Accounts []model.Account
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Path           string
	Accounts       []model.Account
	SkipMigrations bool
}

// SetupTestDB creates a migrated database in a temporary directory and seeds
// the given accounts. The database is closed when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t, testutil.BasicAccounts()...)
func SetupTestDB(t *testing.T, accounts ...model.Account) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Accounts: accounts})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	path := opts.Path
	if path == "" {
		path = filepath.Join(t.TempDir(), "ledger.db")
	}
	store, err := storage.NewSQLiteStorage(path, storage.WithLogger(DiscardLogger()))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for i := range opts.Accounts {
		if err := store.SaveAccount(ctx, &opts.Accounts[i]); err != nil {
			t.Fatalf("failed to seed account %q: %v", opts.Accounts[i].Number, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage:  store,
		Path:     path,
		Accounts: opts.Accounts,
		t:        t,
	}
}

// MustGetAccount returns the seeded account with the given number or fails the test.
func (db *TestDB) MustGetAccount(number string) model.Account {
	db.t.Helper()
	for _, acc := range db.Accounts {
		if acc.Number == number {
			return acc
		}
	}
	db.t.Fatalf("account %q not seeded", number)
	return model.Account{}
}

// MustBalance returns the stored balance of an account in cents or fails the test.
func (db *TestDB) MustBalance(number string) int64 {
	db.t.Helper()
	balance, err := db.Storage.Balance(context.Background(), number)
	if err != nil {
		db.t.Fatalf("failed to read balance of %s: %v", number, err)
	}
	return balance
}

// DiscardLogger returns a logger that writes nothing.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

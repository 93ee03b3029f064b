package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/storage"
)

func TestSetupTestDB(t *testing.T) {
	db := SetupTestDB(t, BasicAccounts()...)

	accounts, err := db.Storage.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 3)
	assert.Equal(t, "Bank", db.MustGetAccount("1910").Name)
	assert.Equal(t, int64(0), db.MustBalance("1910"))

	version, err := db.Storage.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, storage.ExpectedSchemaVersion, version)
}

func TestSetupTestDBWithOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.db")
	called := false

	db := SetupTestDBWithOptions(t, TestDBOptions{
		Path: path,
		CustomSetup: func(_ context.Context, store *storage.SQLiteStorage) error {
			called = true
			assert.Equal(t, path, store.Path())
			return nil
		},
	})

	assert.True(t, called)
	assert.Equal(t, path, db.Path)
	assert.Empty(t, db.Accounts)
}

func TestTextFile(t *testing.T) {
	file := TextFile("bank.csv", "a,b\n1,2")

	assert.Equal(t, "bank.csv", file.Name)
	require.Len(t, file.Lines, 2)
	assert.Equal(t, 1, file.Lines[1].Line)
	assert.Equal(t, "1,2", file.Lines[1].Text)
}

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/model"
)

func TestCheckpointManager_CreateListDelete(t *testing.T) {
	store := createTestStorage(t)
	seedAccounts(t, store)
	ctx := context.Background()
	require.NoError(t, store.CreateProcess(ctx, &model.Process{Name: "one"}))

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-import", "manual")
	require.NoError(t, err)
	assert.Equal(t, "before-import", info.ID)
	assert.Equal(t, 1, info.Processes)
	assert.Equal(t, 7, info.Accounts)
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.FileExists(t, filepath.Join(filepath.Dir(store.Path()), "checkpoints", "before-import.db"))

	_, err = cm.Create(ctx, "before-import", "again")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "manual", list[0].Description)

	require.NoError(t, cm.Delete(ctx, "before-import"))
	assert.ErrorIs(t, cm.Delete(ctx, "before-import"), ErrCheckpointNotFound)
}

func TestCheckpointManager_InvalidIDs(t *testing.T) {
	store := createTestStorage(t)
	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{"../escape", "a/b", `a\b`, "it's"} {
		_, err := cm.Create(ctx, id, "")
		assert.ErrorIs(t, err, ErrInvalidCheckpointID, id)
		assert.ErrorIs(t, cm.Restore(ctx, id), ErrInvalidCheckpointID, id)
		assert.ErrorIs(t, cm.Delete(ctx, id), ErrInvalidCheckpointID, id)
	}
}

func TestCheckpointManager_Restore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "ledger.db")
	ctx := context.Background()

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SaveAccount(ctx, &model.Account{Number: "1910", Name: "Bank", Type: "ASSET"}))

	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	_, err = cm.Create(ctx, "snapshot", "")
	require.NoError(t, err)

	require.NoError(t, store.SaveAccount(ctx, &model.Account{Number: "3000", Name: "Sales", Type: "REVENUE"}))
	require.NoError(t, cm.Restore(ctx, "snapshot"))

	reopened, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	all, err := reopened.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1910", all[0].Number)

	_, err = os.Stat(dbPath + ".restore-backup")
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, cm.Restore(ctx, "missing"), ErrCheckpointNotFound)
}

func TestCheckpointManager_AutoCheckpointPrunes(t *testing.T) {
	store := createTestStorage(t)
	cm, err := store.NewCheckpointManager()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cm.Create(ctx, "manual", "kept")
	require.NoError(t, err)
	for i := 0; i < maxAutoCheckpoints+2; i++ {
		info, err := cm.AutoCheckpoint(ctx, "execution")
		require.NoError(t, err)
		assert.True(t, info.IsAuto)
		time.Sleep(2 * time.Millisecond)
	}

	list, err := cm.List(ctx)
	require.NoError(t, err)
	auto := 0
	for _, cp := range list {
		if cp.IsAuto {
			auto++
		}
	}
	assert.Equal(t, maxAutoCheckpoints, auto)
	assert.Len(t, list, maxAutoCheckpoints+1)
}

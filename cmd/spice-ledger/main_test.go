package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/testutil"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		want string
		size int64
	}{
		{size: 512, want: "512 B"},
		{size: 2048, want: "2.0 KB"},
		{size: 5 * 1024 * 1024, want: "5.0 MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFileSize(tt.size))
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		then time.Time
		want string
	}{
		{then: now.Add(-10 * time.Second), want: "just now"},
		{then: now.Add(-time.Minute), want: "1 minute ago"},
		{then: now.Add(-5 * time.Minute), want: "5 minutes ago"},
		{then: now.Add(-3 * time.Hour), want: "3 hours ago"},
		{then: now.Add(-30 * time.Hour), want: "yesterday"},
		{then: now.Add(-72 * time.Hour), want: "3 days ago"},
		{then: now.Add(-30 * 24 * time.Hour), want: "2024-02-09 12:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRelativeTime(tt.then, now))
	}
}

func TestPluginName(t *testing.T) {
	assert.Equal(t, "nordea", pluginName("/home/me/.config/spice-ledger/importers/nordea.yaml"))
	assert.Equal(t, "coinbase", pluginName("coinbase.toml"))
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-06-30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), d)

	_, err = parseDate("30.6.2024")
	assert.ErrorContains(t, err, "expected YYYY-MM-DD")

	d, err = parseDate("")
	require.NoError(t, err)
	assert.False(t, d.IsZero())
}

func TestParseProcessID(t *testing.T) {
	id, err := parseProcessID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-1", "abc"} {
		_, err := parseProcessID(bad)
		assert.Error(t, err, bad)
	}
}

// execute runs the root command against a database in a fresh directory.
func execute(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", dir)

	var out bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{
		"--database", filepath.Join(dir, "ledger.db"),
		"--log-level", "error",
	}, args...))

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_EmptyDatabase(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		want string
		args []string
	}{
		{name: "version", args: []string{"version"}, want: "spice-ledger dev"},
		{name: "migrate", args: []string{"migrate"}, want: "schema version"},
		{name: "migrate status", args: []string{"migrate", "--status"}, want: "Current version:"},
		{name: "list", args: []string{"list"}, want: "No imports found."},
		{name: "balance", args: []string{"balance"}, want: "No balances found."},
		{name: "balance at", args: []string{"balance", "--at", "2024-01-01"}, want: "No balances found."},
		{name: "stock", args: []string{"stock"}, want: "No assets held."},
		{name: "vat", args: []string{"knowledge", "vat", "--date", "2024-01-01"}, want: "No VAT classes valid on 2024-01-01."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, dir, "", tt.args...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCommands_BalanceListsAccounts(t *testing.T) {
	dir := t.TempDir()
	testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
		Path:     filepath.Join(dir, "ledger.db"),
		Accounts: testutil.BasicAccounts(),
	})

	out, err := execute(t, dir, "", "balance")
	require.NoError(t, err)
	for _, want := range []string{"1910", "Bank", "3000", "Sales", "4000", "Purchases", "total"} {
		assert.Contains(t, out, want)
	}
}

func TestCommands_Checkpoints(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, dir, "", "checkpoint", "create", "--tag", "before", "--description", "first")
	require.NoError(t, err)
	assert.Contains(t, out, "Created checkpoint before")
	assert.Contains(t, out, "Description: first")

	out, err = execute(t, dir, "", "checkpoint", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "manual")

	out, err = execute(t, dir, "n\n", "checkpoint", "delete", "before")
	require.NoError(t, err)
	assert.Contains(t, out, "Deletion canceled.")

	out, err = execute(t, dir, "y\n", "checkpoint", "delete", "before")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted checkpoint before")

	_, err = execute(t, dir, "", "checkpoint", "restore", "before", "--force")
	assert.Error(t, err)
}

func TestCommands_UnknownProcess(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, dir, "", "show", "7")
	assert.ErrorContains(t, err, "failed to load process 7")

	_, err = execute(t, dir, "", "run", "abc")
	assert.ErrorContains(t, err, "Invalid process id")
}

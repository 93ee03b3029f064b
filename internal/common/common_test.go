package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewUserError("Failed to save", cause)

	assert.Equal(t, "Failed to save: disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	var userErr *UserError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "Failed to save", userErr.UserMessage)
	assert.Equal(t, "Rollback failed.", NewUserError("Rollback failed.", nil).Error())
}

func TestCompileRegex(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		flags   string
		text    string
		wantErr bool
		match   bool
	}{
		{name: "plain", pattern: "^ATM", text: "ATM withdrawal", match: true},
		{name: "case insensitive", pattern: "^atm", flags: "i", text: "ATM withdrawal", match: true},
		{name: "case sensitive", pattern: "^atm", text: "ATM withdrawal"},
		{name: "global ignored", pattern: "fee", flags: "gi", text: "FEE", match: true},
		{name: "multiline", pattern: "^b$", flags: "m", text: "a\nb", match: true},
		{name: "unknown flag", pattern: "x", flags: "y", wantErr: true},
		{name: "bad pattern", pattern: "(", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := CompileRegex(tt.pattern, tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.text))
		})
	}
}

func TestOnceLogger(t *testing.T) {
	var buf bytes.Buffer
	once := NewOnceLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	assert.True(t, once.Warn("Account without name", "account", "1910"))
	assert.False(t, once.Warn("Account without name", "account", "1911"))
	assert.True(t, once.Warn("Other warning"))

	assert.Equal(t, 1, strings.Count(buf.String(), "Account without name"))
	assert.Contains(t, buf.String(), "account=1910")
}

func TestWithRetry(t *testing.T) {
	fast := RetryOptions{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	t.Run("succeeds after locked", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return ErrDatabaseLocked
			}
			return nil
		}, fast)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: errors.New("flaky"), Retryable: true}
		}, fast)
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return ErrInvalidFile
		}, fast)
		assert.ErrorIs(t, err, ErrInvalidFile)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetry(ctx, func() error { return ErrDatabaseLocked }, RetryOptions{MaxAttempts: 2, InitialDelay: time.Hour})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestSetupLogger(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	require.NoError(t, SetupLogger(slog.LevelWarn, "json"))
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelWarn))
}

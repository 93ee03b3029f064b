package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterFunc(t *testing.T) {
	tests := []struct {
		filter map[string]any
		obj    map[string]any
		name   string
		want   bool
	}{
		{name: "nil filter", filter: nil, obj: map[string]any{"a": 1}, want: true},
		{name: "string match", filter: map[string]any{"status": "SUCCEEDED"}, obj: map[string]any{"status": "SUCCEEDED"}, want: true},
		{name: "string mismatch", filter: map[string]any{"status": "SUCCEEDED"}, obj: map[string]any{"status": "FAILED"}, want: false},
		{name: "number match across int types", filter: map[string]any{"id": 3}, obj: map[string]any{"id": int64(3)}, want: true},
		{name: "number does not equal string", filter: map[string]any{"id": 3}, obj: map[string]any{"id": "3"}, want: false},
		{name: "list membership", filter: map[string]any{"status": []any{"FAILED", "CRASHED"}}, obj: map[string]any{"status": "CRASHED"}, want: true},
		{name: "list miss", filter: map[string]any{"status": []string{"FAILED"}}, obj: map[string]any{"status": "WAITING"}, want: false},
		{name: "all keys required", filter: map[string]any{"a": 1, "b": 2}, obj: map[string]any{"a": 1}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, err := FilterFunc(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, match(tt.obj))
		})
	}
}

func TestFilterFunc_Invalid(t *testing.T) {
	_, err := FilterFunc(map[string]any{"a": map[string]any{"b": 1}})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = FilterFunc(map[string]any{"a": true})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

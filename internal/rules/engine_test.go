package rules

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Eval(t *testing.T) {
	e := New()
	vars := map[string]any{
		"amount": "12,50",
		"count":  3,
		"text":   "Payment to ACME Oy",
		"lines":  []any{map[string]any{"x": "first"}, map[string]any{"x": "second"}},
		"rule":   map[string]any{"name": "test"},
	}

	tests := []struct {
		name string
		expr any
		want any
	}{
		{name: "number literal", expr: "1 + 2 * 3", want: 7.0},
		{name: "integer variable normalized", expr: "count * 2", want: 6.0},
		{name: "parentheses", expr: "(1 + 2) * 3", want: 9.0},
		{name: "string concatenation", expr: "'a' + \"b\"", want: "ab"},
		{name: "single quote escape", expr: `'it\'s'`, want: "it's"},
		{name: "comparison", expr: "count >= 3 && count < 4", want: true},
		{name: "string equality", expr: "rule.name == 'test'", want: true},
		{name: "negation", expr: "!(count == 3)", want: false},
		{name: "array index", expr: "lines[1].x", want: "second"},
		{name: "bracket member", expr: "lines[0]['x']", want: "first"},
		{name: "missing member is null", expr: "rule.other == null", want: true},
		{name: "null literal", expr: "null", want: nil},
		{name: "array literal", expr: "[1, 'a']", want: []any{1.0, "a"}},
		{name: "function call", expr: "num(amount) * 2", want: 25.0},
		{name: "lookup with default", expr: "$('missing', 'fallback')", want: "fallback"},
		{name: "lookup with spaces", expr: "$ ('count')", want: 3.0},
		{name: "lookup without default", expr: "$('missing')", want: nil},
		{name: "dollar inside string is kept", expr: "'$(x)'", want: "$(x)"},
		{name: "blank expression", expr: "   ", want: nil},
		{name: "non-string passes through", expr: 42, want: 42.0},
		{name: "boolean passes through", expr: true, want: true},
		{
			name: "object is evaluated recursively",
			expr: map[string]any{"a": "count + 1", "b": []any{"'x'", 5}},
			want: map[string]any{"a": 4.0, "b": []any{"x", 5.0}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(context.Background(), tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_EvalErrors(t *testing.T) {
	e := New()
	vars := map[string]any{"count": 1.0}

	tests := []struct {
		target error
		name   string
		expr   string
	}{
		{name: "unknown variable", expr: "unknown + 1"},
		{name: "syntax error", expr: "1 +"},
		{name: "unterminated string", expr: "'abc"},
		{name: "disabled import", expr: "import('x')", target: ErrDisabledFunction},
		{name: "disabled evaluate", expr: "evaluate('1+1')", target: ErrDisabledFunction},
		{name: "disabled createUnit", expr: "createUnit('x')", target: ErrDisabledFunction},
		{name: "bad argument", expr: "lower(count)", target: ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Eval(context.Background(), tt.expr, vars)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEvaluation)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}

			var evalErr *EvaluationError
			require.True(t, errors.As(err, &evalErr))
			assert.Equal(t, tt.expr, evalErr.Expression)
			assert.Equal(t, 1.0, evalErr.Variables["count"])
		})
	}
}

func TestEngine_VariablesAreNotMutated(t *testing.T) {
	e := New()
	inner := map[string]any{"a": 1}
	vars := map[string]any{"inner": inner}

	_, err := e.Eval(context.Background(), "inner.a + 1", vars)
	require.NoError(t, err)
	assert.Equal(t, 1, inner["a"])
}

func TestEngine_CompileCache(t *testing.T) {
	e := New()
	require.NoError(t, e.Compile("1 + 1"))
	require.Error(t, e.Compile("1 +"))

	e.mu.RLock()
	_, cached := e.cache["1 + 1"]
	e.mu.RUnlock()
	assert.True(t, cached)
}

func TestEngine_Functions(t *testing.T) {
	names := New().Functions()
	assert.Contains(t, names, "$")
	assert.Contains(t, names, "num")
	assert.NotContains(t, names, lookupFunction)
	assert.NotContains(t, names, "import")
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "single quotes", in: "'a'", want: `"a"`},
		{name: "embedded double quote", in: `'say "hi"'`, want: `"say \"hi\""`},
		{name: "newline escape", in: `'a\nb'`, want: `"a\nb"`},
		{name: "unknown escape keeps backslash", in: `'\d+'`, want: `"\\d+"`},
		{name: "double quotes untouched", in: `"it's"`, want: `"it's"`},
		{name: "lookup rewrite", in: "$('x') + $ ( 'y')", want: `_lookup("x") + _lookup( "y")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := preprocess(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_NaNComparison(t *testing.T) {
	e := New()
	got, err := e.Eval(context.Background(), "num('abc') > 0", nil)
	require.NoError(t, err)
	assert.Equal(t, false, got)

	got, err = e.Eval(context.Background(), "num('abc')", nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.(float64)))
}

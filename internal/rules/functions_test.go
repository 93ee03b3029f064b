package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctions(t *testing.T) {
	e := New()
	vars := map[string]any{
		"answer": "b",
		"rule": map[string]any{
			"questions": map[string]any{
				"answer": map[string]any{
					"ask": map[string]any{"Option A": "a", "Option B": "b", "Also B": "b"},
				},
			},
		},
		"items": []any{
			map[string]any{"n": "10", "t": "x"},
			map[string]any{"n": "5.9", "t": ""},
			map[string]any{"n": nil, "t": "y"},
		},
		"tags": []any{map[string]any{"value": "A"}, "B"},
	}

	tests := []struct {
		name string
		expr string
		want any
	}{
		{name: "num plain", expr: "num('12.5')", want: 12.5},
		{name: "num comma decimal", expr: "num('1 234,56')", want: 1234.56},
		{name: "num thousands", expr: "num('12,300.50')", want: 12300.5},
		{name: "num european thousands", expr: "num('12.300,50')", want: 12300.5},
		{name: "num number", expr: "num(3)", want: 3.0},
		{name: "cents", expr: "cents(12.345)", want: 1235.0},
		{name: "cents negative", expr: "cents(-0.1)", want: -10.0},
		{name: "isCurrency true", expr: "isCurrency('EUR')", want: true},
		{name: "isCurrency false", expr: "isCurrency('XYZQ')", want: false},
		{name: "isCurrency number", expr: "isCurrency(1)", want: false},
		{name: "regex groups", expr: "regex('(\\d+)-(\\d+)', 'ref 12-34')", want: []any{"12", "34"}},
		{name: "regex no groups", expr: "regex('ref', 'ref 12')", want: true},
		{name: "regex flags", expr: "regex('REF', 'ref', 'i')", want: true},
		{name: "regex miss", expr: "regex('x', 'abc')", want: false},
		{name: "contains", expr: "contains('abc', 'b')", want: true},
		{name: "lower", expr: "lower('ABC')", want: "abc"},
		{name: "ucfirst", expr: "ucfirst('äbc')", want: "Äbc"},
		{name: "capitalize", expr: "capitalize('hELLO wORLD')", want: "Hello World"},
		{name: "clean", expr: "clean('  a   b \n\n c ')", want: "a b\nc"},
		{name: "join", expr: "join('a', null, ' ', 'b ', 1)", want: "a b 1"},
		{name: "str", expr: "str(1.5)", want: "1.5"},
		{name: "str null", expr: "str(null)", want: "null"},
		{name: "sum field", expr: "sum(items, 'n')", want: 15.0},
		{name: "concat field", expr: "concat(items, 't', ', ')", want: "x, y"},
		{name: "concat default separator", expr: "concat(items, 't')", want: "x\ny"},
		{name: "has object value", expr: "has(tags, 'A')", want: true},
		{name: "has plain value", expr: "has(tags, 'B')", want: true},
		{name: "has missing", expr: "has(tags, 'C')", want: false},
		{name: "times", expr: "times(3, 'pcs')", want: "3 x pcs"},
		{name: "times zero", expr: "times(0, 'pcs')", want: ""},
		{name: "times null", expr: "times(null, 'pcs')", want: ""},
		{name: "times not a number", expr: "times('abc', 'pcs')", want: "NaN x pcs"},
		{name: "par", expr: "par('a', null, false, '', 'b')", want: " (a, b)"},
		{name: "par empty", expr: "par(null, '')", want: ""},
		{name: "chosen", expr: "chosen('answer')", want: "Also B, Option B"},
		{name: "rates", expr: "rates('BTC', '20000,5', 'ETH', 1000)", want: map[string]any{"BTC": 20000.5, "ETH": 1000.0}},
		{name: "debug returns last", expr: "d('x', 2)", want: 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(context.Background(), tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFunctionErrors(t *testing.T) {
	e := New()
	vars := map[string]any{
		"answer": "z",
		"rule": map[string]any{
			"questions": map[string]any{
				"answer": map[string]any{"ask": map[string]any{"A": "a"}},
				"plain":  map[string]any{"text": "no options"},
			},
		},
		"plain": "x",
	}

	tests := []struct {
		name string
		expr string
	}{
		{name: "cents of string", expr: "cents('12')"},
		{name: "contains number", expr: "contains(1, 'a')"},
		{name: "capitalize number", expr: "capitalize(1)"},
		{name: "sum of non list", expr: "sum('abc', 'n')"},
		{name: "concat of non list", expr: "concat(1, 'n')"},
		{name: "chosen undefined", expr: "chosen('nothing')"},
		{name: "chosen without match", expr: "chosen('answer')"},
		{name: "chosen without options", expr: "chosen('plain')"},
		{name: "rates odd", expr: "rates('BTC')"},
		{name: "invalid regex", expr: "regex('(', 'x')"},
		{name: "invalid regex flag", expr: "regex('x', 'x', 'q')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Eval(context.Background(), tt.expr, vars)
			assert.ErrorIs(t, err, ErrEvaluation)
		})
	}
}

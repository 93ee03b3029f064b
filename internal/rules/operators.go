package rules

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/PaesslerAG/gval"
)

// operators defines every operator of the rule grammar. Numbers are float64,
// strings compare lexically and + concatenates two strings.
func operators() []gval.Language {
	return []gval.Language{
		gval.PrefixOperator("-", func(_ context.Context, v any) (any, error) {
			n, ok := toNumber(v)
			if !ok {
				return nil, fmt.Errorf("cannot negate %s", describe(v))
			}
			return -n, nil
		}),
		gval.PrefixOperator("!", func(_ context.Context, v any) (any, error) {
			return !Truthy(v), nil
		}),

		gval.InfixOperator("+", add),
		gval.InfixOperator("-", arithmetic("-", func(a, b float64) float64 { return a - b })),
		gval.InfixOperator("*", arithmetic("*", func(a, b float64) float64 { return a * b })),
		gval.InfixOperator("/", arithmetic("/", func(a, b float64) float64 { return a / b })),
		gval.InfixOperator("%", arithmetic("%", math.Mod)),

		gval.InfixOperator("==", func(a, b any) (any, error) { return equal(a, b), nil }),
		gval.InfixOperator("!=", func(a, b any) (any, error) { return !equal(a, b), nil }),
		gval.InfixOperator("<", relation("<", func(c int) bool { return c < 0 })),
		gval.InfixOperator("<=", relation("<=", func(c int) bool { return c <= 0 })),
		gval.InfixOperator(">", relation(">", func(c int) bool { return c > 0 })),
		gval.InfixOperator(">=", relation(">=", func(c int) bool { return c >= 0 })),

		gval.InfixOperator("&&", func(a, b any) (any, error) { return Truthy(a) && Truthy(b), nil }),
		gval.InfixOperator("||", func(a, b any) (any, error) { return Truthy(a) || Truthy(b), nil }),

		gval.Precedence("||", 20),
		gval.Precedence("&&", 21),
		gval.Precedence("==", 40),
		gval.Precedence("!=", 40),
		gval.Precedence("<", 40),
		gval.Precedence("<=", 40),
		gval.Precedence(">", 40),
		gval.Precedence(">=", 40),
		gval.Precedence("+", 120),
		gval.Precedence("-", 120),
		gval.Precedence("*", 150),
		gval.Precedence("/", 150),
		gval.Precedence("%", 150),
	}
}

func add(a, b any) (any, error) {
	sa, aString := a.(string)
	sb, bString := b.(string)
	if aString && bString {
		return sa + sb, nil
	}
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if !okA || !okB {
		return nil, fmt.Errorf("cannot add %s and %s", describe(a), describe(b))
	}
	return x + y, nil
}

func arithmetic(op string, f func(a, b float64) float64) func(a, b any) (any, error) {
	return func(a, b any) (any, error) {
		x, okA := toNumber(a)
		y, okB := toNumber(b)
		if !okA || !okB {
			return nil, fmt.Errorf("cannot compute %s %s %s", describe(a), op, describe(b))
		}
		return f(x, y), nil
	}
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	sa, aString := a.(string)
	sb, bString := b.(string)
	if aString && bString {
		return sa == sb
	}
	if aString || bString {
		x, okA := toNumber(a)
		y, okB := toNumber(b)
		return okA && okB && x == y
	}
	x, okA := toNumber(a)
	y, okB := toNumber(b)
	if okA && okB {
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

func relation(op string, test func(c int) bool) func(a, b any) (any, error) {
	return func(a, b any) (any, error) {
		sa, aString := a.(string)
		sb, bString := b.(string)
		if aString && bString {
			switch {
			case sa < sb:
				return test(-1), nil
			case sa > sb:
				return test(1), nil
			default:
				return test(0), nil
			}
		}
		x, okA := toNumber(a)
		y, okB := toNumber(b)
		if !okA || !okB {
			return nil, fmt.Errorf("cannot compare %s %s %s", describe(a), op, describe(b))
		}
		if math.IsNaN(x) || math.IsNaN(y) {
			return false, nil
		}
		switch {
		case x < y:
			return test(-1), nil
		case x > y:
			return test(1), nil
		default:
			return test(0), nil
		}
	}
}

// Package rules evaluates the expression language used by import rules.
//
// The grammar is closed: literals, variables, arithmetic, comparison, boolean
// operators, array and object literals and a fixed library of functions. A few
// names are reserved and always fail when called.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/PaesslerAG/gval"

	"github.com/Veraticus/spice-ledger/internal/common"
)

// Engine compiles and evaluates rule expressions. It is safe for concurrent use.
type Engine struct {
	language gval.Language
	logger   *slog.Logger
	warnings *common.OnceLogger
	cache    map[string]gval.Evaluable
	names    []string
	mu       sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by d() and by parse warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an evaluation engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		cache:  make(map[string]gval.Evaluable),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.warnings = common.NewOnceLogger(e.logger)

	fns := e.functions()
	languages := []gval.Language{
		gval.Base(),
		gval.JSON(),
		gval.Constant("null", nil),
		gval.Constant("undefined", nil),
	}
	languages = append(languages, operators()...)
	languages = append(languages, gval.VariableSelector(selectVariable))
	for name, fn := range fns {
		languages = append(languages, gval.Function(name, (func(context.Context, ...any) (any, error))(fn)))
	}
	for _, name := range disabledFunctions {
		languages = append(languages, gval.Function(name, (func(context.Context, ...any) (any, error))(disabled(name))))
	}
	e.language = gval.NewLanguage(languages...)
	e.names = registryNames(fns)
	return e
}

// Functions returns the names of the callable library functions.
func (e *Engine) Functions() []string {
	return append([]string(nil), e.names...)
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) map[string]any {
	scope, _ := ctx.Value(scopeKey{}).(map[string]any)
	return scope
}

// Eval evaluates expr against vars. Strings are parsed as expressions, maps and
// slices are evaluated element by element and any other value is returned as is.
// A blank expression evaluates to nil.
func (e *Engine) Eval(ctx context.Context, expr any, vars map[string]any) (any, error) {
	scope := NormalizeMap(vars)
	return e.eval(context.WithValue(ctx, scopeKey{}, scope), expr, scope)
}

func (e *Engine) eval(ctx context.Context, expr any, scope map[string]any) (any, error) {
	switch x := expr.(type) {
	case string:
		return e.evalString(ctx, x, scope)
	case map[string]any:
		out := make(map[string]any, len(x))
		for _, key := range sortedKeys(x) {
			v, err := e.eval(ctx, x[key], scope)
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, element := range x {
			v, err := e.eval(ctx, element, scope)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		return Normalize(x), nil
	}
}

func (e *Engine) evalString(ctx context.Context, expr string, scope map[string]any) (any, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	evaluable, err := e.compile(expr)
	if err != nil {
		return nil, &EvaluationError{Err: err, Variables: CloneScope(scope), Expression: expr}
	}
	v, err := evaluable(ctx, scope)
	if err != nil {
		return nil, &EvaluationError{Err: err, Variables: CloneScope(scope), Expression: expr}
	}
	return Normalize(v), nil
}

// Compile parses an expression without evaluating it.
func (e *Engine) Compile(expr string) error {
	_, err := e.compile(expr)
	return err
}

func (e *Engine) compile(expr string) (gval.Evaluable, error) {
	e.mu.RLock()
	evaluable, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return evaluable, nil
	}

	source, err := preprocess(expr)
	if err != nil {
		return nil, err
	}
	evaluable, err = e.language.NewEvaluable(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = evaluable
	e.mu.Unlock()
	return evaluable, nil
}

// CloneScope copies a variable map for error reports.
func CloneScope(scope map[string]any) map[string]any {
	return NormalizeMap(scope)
}

// preprocess rewrites single-quoted strings into double-quoted ones and
// `$(` into the internal lookup function.
func preprocess(expr string) (string, error) {
	var out strings.Builder
	runes := []rune(expr)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '"', '`':
			end := i + 1
			for end < len(runes) && runes[end] != r {
				if r == '"' && runes[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(runes) {
				return "", fmt.Errorf("unterminated string in %q", expr)
			}
			out.WriteString(string(runes[i : end+1]))
			i = end
		case '\'':
			var s strings.Builder
			end := i + 1
			for ; end < len(runes) && runes[end] != '\''; end++ {
				if runes[end] != '\\' || end+1 >= len(runes) {
					s.WriteRune(runes[end])
					continue
				}
				end++
				switch runes[end] {
				case 'n':
					s.WriteRune('\n')
				case 't':
					s.WriteRune('\t')
				case 'r':
					s.WriteRune('\r')
				case '\\', '\'', '"':
					s.WriteRune(runes[end])
				default:
					s.WriteRune('\\')
					s.WriteRune(runes[end])
				}
			}
			if end >= len(runes) {
				return "", fmt.Errorf("unterminated string in %q", expr)
			}
			out.WriteString(strconv.Quote(s.String()))
			i = end
		case '$':
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
				j++
			}
			if j < len(runes) && runes[j] == '(' {
				out.WriteString(lookupFunction)
				i = j - 1
				continue
			}
			out.WriteRune(r)
		default:
			out.WriteRune(r)
		}
	}
	return out.String(), nil
}

// selectVariable resolves a.b and a[0] paths. Unknown variables are errors.
func selectVariable(path gval.Evaluables) gval.Evaluable {
	return func(c context.Context, v any) (any, error) {
		keys, err := path.EvalStrings(c, v)
		if err != nil {
			return nil, err
		}
		current := v
		for i, key := range keys {
			switch x := current.(type) {
			case map[string]any:
				next, ok := x[key]
				if !ok {
					if i == 0 {
						return nil, fmt.Errorf("unknown variable %q", key)
					}
					return nil, nil
				}
				current = next
			case []any:
				if key == "length" {
					current = float64(len(x))
					continue
				}
				index, err := strconv.Atoi(key)
				if err != nil || index < 0 || index >= len(x) {
					return nil, nil
				}
				current = x[index]
			case string:
				if key == "length" {
					current = float64(len([]rune(x)))
					continue
				}
				return nil, nil
			default:
				return nil, fmt.Errorf("cannot read %q of %s", strings.Join(keys[:i+1], "."), describe(current))
			}
		}
		return current, nil
	}
}

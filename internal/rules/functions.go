package rules

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

type function func(ctx context.Context, args ...any) (any, error)

// disabledFunctions can never be called from a rule.
var disabledFunctions = []string{"import", "createUnit", "evaluate", "parse", "simplify", "derivative"}

// lookupFunction is the identifier that `$(` is rewritten to before parsing.
const lookupFunction = "_lookup"

var whitespace = regexp.MustCompile(`\s+`)

// functions returns the closed function library of the rule grammar.
func (e *Engine) functions() map[string]function {
	return map[string]function{
		lookupFunction: e.lookup,
		"capitalize":   stringFunc("capitalize", capitalize),
		"cents":        centsFunc,
		"chosen":       e.chosen,
		"clean":        stringFunc("clean", clean),
		"concat":       concat,
		"contains":     contains,
		"d":            e.debug,
		"has":          has,
		"isCurrency":   isCurrency,
		"join":         join,
		"lower":        stringFunc("lower", strings.ToLower),
		"num":          e.num,
		"par":          par,
		"rates":        e.rates,
		"regex":        regex,
		"str":          str,
		"sum":          sum,
		"times":        times,
		"ucfirst":      stringFunc("ucfirst", ucfirst),
	}
}

func disabled(name string) function {
	return func(context.Context, ...any) (any, error) {
		return nil, fmt.Errorf("function %s is disabled: %w", name, ErrDisabledFunction)
	}
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func stringFunc(name string, f func(string) string) function {
	return func(_ context.Context, args ...any) (any, error) {
		s, ok := arg(args, 0).(string)
		if !ok {
			return nil, invalidArgument(name, arg(args, 0))
		}
		return f(s), nil
	}
}

func (e *Engine) lookup(ctx context.Context, args ...any) (any, error) {
	name, ok := arg(args, 0).(string)
	if !ok {
		return nil, invalidArgument("$", arg(args, 0))
	}
	if v, found := scopeFrom(ctx)[name]; found {
		return v, nil
	}
	return arg(args, 1), nil
}

func ucfirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func capitalize(s string) string {
	words := strings.Split(strings.ToLower(s), " ")
	for i, w := range words {
		words[i] = ucfirst(w)
	}
	return strings.Join(words, " ")
}

func clean(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(whitespace.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func centsFunc(_ context.Context, args ...any) (any, error) {
	return Cents(arg(args, 0))
}

func (e *Engine) chosen(ctx context.Context, args ...any) (any, error) {
	name, ok := arg(args, 0).(string)
	if !ok {
		return nil, invalidArgument("chosen", arg(args, 0))
	}
	scope := scopeFrom(ctx)
	answer, found := scope[name]
	if !found {
		return nil, fmt.Errorf("variable '%s' is not defined", name)
	}
	rule, _ := scope["rule"].(map[string]any)
	questions, _ := rule["questions"].(map[string]any)
	question, found := questions[name].(map[string]any)
	if !found {
		return nil, fmt.Errorf("cannot find variable '%s' from questions of the rule %s", name, describe(rule["questions"]))
	}
	options, found := question["ask"].(map[string]any)
	if !found {
		return nil, fmt.Errorf("cannot reverse map question %s when looking for chosen '%s'", describe(question), name)
	}
	var labels []string
	for _, label := range sortedKeys(options) {
		if strictEqual(options[label], answer) {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("unable to find any matches for answer %s from question %s", describe(answer), describe(question))
	}
	return strings.Join(labels, ", "), nil
}

func contains(_ context.Context, args ...any) (any, error) {
	s, okS := arg(args, 0).(string)
	r, okR := arg(args, 1).(string)
	if !okS {
		return nil, invalidArgument("contains", arg(args, 0))
	}
	if !okR {
		return nil, invalidArgument("contains", arg(args, 1))
	}
	return strings.Contains(s, r), nil
}

func (e *Engine) debug(_ context.Context, args ...any) (any, error) {
	e.logger.Debug("Rule debug", "values", args)
	if len(args) == 0 {
		return nil, nil
	}
	return args[len(args)-1], nil
}

func has(_ context.Context, args ...any) (any, error) {
	list, ok := arg(args, 0).([]any)
	if !ok {
		return nil, invalidArgument("has", arg(args, 0))
	}
	item := arg(args, 1)
	for _, element := range list {
		if m, isMap := element.(map[string]any); isMap {
			element = m["value"]
		}
		if strictEqual(element, item) {
			return true, nil
		}
	}
	return false, nil
}

func isCurrency(_ context.Context, args ...any) (any, error) {
	s, ok := arg(args, 0).(string)
	return ok && model.IsCurrency(s), nil
}

func join(_ context.Context, args ...any) (any, error) {
	var parts []string
	for _, a := range args {
		if a == nil {
			continue
		}
		if s := strings.TrimSpace(ToString(a)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), nil
}

func (e *Engine) num(_ context.Context, args ...any) (any, error) {
	v := arg(args, 0)
	if f, ok := v.(float64); ok {
		return f, nil
	}
	n := Num(ToString(v))
	if math.IsNaN(n) {
		e.warnings.Warn(fmt.Sprintf("Unable to parse number from %s.", describe(v)))
	}
	return n, nil
}

func par(_ context.Context, args ...any) (any, error) {
	var parts []string
	for _, a := range args {
		if a == nil || a == false {
			continue
		}
		if s := strings.TrimSpace(ToString(a)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " (" + strings.Join(parts, ", ") + ")", nil
}

func (e *Engine) rates(ctx context.Context, args ...any) (any, error) {
	if len(args)%2 != 0 {
		return nil, fmt.Errorf("%w: rates() needs asset and rate pairs", ErrInvalidArgument)
	}
	out := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		rate, err := e.num(ctx, args[i+1])
		if err != nil {
			return nil, err
		}
		out[ToString(args[i])] = rate
	}
	return out, nil
}

func regex(_ context.Context, args ...any) (any, error) {
	pattern, ok := arg(args, 0).(string)
	if !ok {
		return nil, invalidArgument("regex", arg(args, 0))
	}
	text := ToString(arg(args, 1))
	flags := ""
	if f, isString := arg(args, 2).(string); isString {
		flags = f
	}
	re, err := common.CompileRegex(pattern, flags)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", pattern, err)
	}
	match := re.FindStringSubmatchIndex(text)
	if match == nil {
		return false, nil
	}
	var groups []any
	for i := 1; 2*i < len(match) && match[2*i] >= 0; i++ {
		groups = append(groups, text[match[2*i]:match[2*i+1]])
	}
	if len(groups) == 0 {
		return true, nil
	}
	return groups, nil
}

func str(_ context.Context, args ...any) (any, error) {
	return ToString(arg(args, 0)), nil
}

// parseLeadingInt parses an integer prefix of the value's string form.
func parseLeadingInt(v any) (int64, bool) {
	s := strings.TrimSpace(ToString(v))
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func fieldValues(name string, vector any, field any) ([]any, error) {
	list, ok := vector.([]any)
	if !ok {
		return nil, invalidArgument(name, vector)
	}
	key, hasField := field.(string)
	if !hasField || key == "" {
		return list, nil
	}
	values := make([]any, 0, len(list))
	for _, element := range list {
		m, isMap := element.(map[string]any)
		if !isMap {
			values = append(values, nil)
			continue
		}
		values = append(values, m[key])
	}
	return values, nil
}

func sum(_ context.Context, args ...any) (any, error) {
	values, err := fieldValues("sum", arg(args, 0), arg(args, 1))
	if err != nil {
		return nil, err
	}
	var total int64
	for _, v := range values {
		if !Truthy(v) {
			continue
		}
		if n, ok := parseLeadingInt(v); ok {
			total += n
		}
	}
	return float64(total), nil
}

func concat(_ context.Context, args ...any) (any, error) {
	values, err := fieldValues("concat", arg(args, 0), arg(args, 1))
	if err != nil {
		return nil, err
	}
	sep, _ := arg(args, 2).(string)
	if sep == "" {
		sep = "\n"
	}
	var parts []string
	for _, v := range values {
		if Truthy(v) {
			parts = append(parts, ToString(v))
		}
	}
	return strings.Join(parts, sep), nil
}

func times(_ context.Context, args ...any) (any, error) {
	count := arg(args, 0)
	if count == nil || count == 0.0 {
		return "", nil
	}
	n, ok := parseLeadingInt(count)
	if !ok {
		return "NaN x " + ToString(arg(args, 1)), nil
	}
	return fmt.Sprintf("%d x %s", n, ToString(arg(args, 1))), nil
}

// registryNames lists callable function names in sorted order.
func registryNames(fns map[string]function) []string {
	names := make([]string, 0, len(fns))
	for name := range fns {
		if name == lookupFunction {
			name = "$"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package rules

import (
	"fmt"
)

// FilterFunc builds a predicate from a filter definition. Each key of the
// filter must match the same key of a candidate: a number or string requires
// equality and a list requires membership. A nil filter accepts everything.
func FilterFunc(filter map[string]any) (func(map[string]any) bool, error) {
	if filter == nil {
		return func(map[string]any) bool { return true }, nil
	}
	filter = NormalizeMap(filter)

	checks := make([]func(map[string]any) bool, 0, len(filter))
	for _, key := range sortedKeys(filter) {
		want := filter[key]
		switch x := want.(type) {
		case float64, string:
			checks = append(checks, func(obj map[string]any) bool {
				return strictEqual(Normalize(obj[key]), x)
			})
		case []any:
			checks = append(checks, func(obj map[string]any) bool {
				got := Normalize(obj[key])
				for _, option := range x {
					if strictEqual(got, option) {
						return true
					}
				}
				return false
			})
		default:
			return nil, fmt.Errorf("%w: cannot use %s as a filter for %q", ErrInvalidFilter, describe(want), key)
		}
	}

	return func(obj map[string]any) bool {
		for _, check := range checks {
			if !check(obj) {
				return false
			}
		}
		return true
	}, nil
}

package common

import (
	"fmt"
	"regexp"
	"strings"
)

// CompileRegex compiles a pattern with JavaScript style flags.
// Supported flags are i, m and s; g is accepted and ignored.
func CompileRegex(pattern, flags string) (*regexp.Regexp, error) {
	var goFlags strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(goFlags.String(), f) {
				goFlags.WriteRune(f)
			}
		case 'g', 'u':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", f)
		}
	}
	if goFlags.Len() > 0 {
		pattern = "(?" + goFlags.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

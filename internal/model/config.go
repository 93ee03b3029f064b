package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ImportConfig is the flat configuration of one import process. Keys such as
// "account.<address>" and "tags.<address>" bind addresses, "answers" holds the
// user answers per segment and "rules" the classification rules.
type ImportConfig map[string]any

// Well known configuration keys.
const (
	ConfigCurrency = "currency"
	ConfigLanguage = "language"
	ConfigAnswers  = "answers"
	ConfigRules    = "rules"
)

// Clone returns a deep copy of the configuration.
func (c ImportConfig) Clone() ImportConfig {
	if c == nil {
		return ImportConfig{}
	}
	return ImportConfig(CloneMap(c))
}

// Merge assigns every key of other over a copy of c.
func (c ImportConfig) Merge(other map[string]any) ImportConfig {
	out := c.Clone()
	for k, v := range other {
		out[k] = CloneValue(v)
	}
	return out
}

// String returns a string setting or "".
func (c ImportConfig) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool reports whether a setting is explicitly true.
func (c ImportConfig) Bool(key string) (value bool, found bool) {
	switch v := c[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

// Currency returns the default currency, "EUR" when not configured.
func (c ImportConfig) Currency() string {
	if cur := c.String(ConfigCurrency); cur != "" {
		return cur
	}
	return "EUR"
}

// Answers returns the answers of all segments.
func (c ImportConfig) Answers() map[string]map[string]any {
	out := make(map[string]map[string]any)
	raw, ok := c[ConfigAnswers].(map[string]any)
	if !ok {
		return out
	}
	for seg, v := range raw {
		if answers, ok := v.(map[string]any); ok {
			out[seg] = answers
		}
	}
	return out
}

// Answer looks up the answer to a variable for one segment.
func (c ImportConfig) Answer(segment SegmentID, variable string) (any, bool) {
	answers, ok := c.Answers()[string(segment)]
	if !ok {
		return nil, false
	}
	v, ok := answers[variable]
	return v, ok
}

// WithAnswers deep merges answers keyed by segment into a copy of c.
func (c ImportConfig) WithAnswers(answers map[string]map[string]any) ImportConfig {
	out := c.Clone()
	all, _ := out[ConfigAnswers].(map[string]any)
	if all == nil {
		all = make(map[string]any)
	}
	for seg, values := range answers {
		current, _ := all[seg].(map[string]any)
		if current == nil {
			current = make(map[string]any)
		}
		for k, v := range values {
			current[k] = CloneValue(v)
		}
		all[seg] = current
	}
	out[ConfigAnswers] = all
	return out
}

// Account returns the account number bound to an address. Bindings are tried
// from the most specific key "account.r.t.a" to the wildcard "account.r.t.*".
func (c ImportConfig) Account(addr AccountAddress) (string, bool) {
	reason, typ, _, err := addr.Parts()
	if err != nil {
		return "", false
	}
	for _, key := range []string{"account." + string(addr), fmt.Sprintf("account.%s.%s.*", reason, typ)} {
		if v := c.String(key); v != "" {
			return v, true
		}
	}
	return "", false
}

// Tags returns the tags bound to an address, most specific binding first.
func (c ImportConfig) Tags(addr AccountAddress) []string {
	reason, typ, asset, err := addr.Parts()
	if err != nil {
		return nil
	}
	keys := []string{
		fmt.Sprintf("tags.%s.%s.%s", reason, typ, asset),
		fmt.Sprintf("tags.%s.%s.*", reason, typ),
		fmt.Sprintf("tags.%s.*.*", reason),
		"tags.*.*.*",
	}
	for _, key := range keys {
		switch v := c[key].(type) {
		case []any:
			tags := make([]string, 0, len(v))
			for _, t := range v {
				tags = append(tags, fmt.Sprint(t))
			}
			return tags
		case []string:
			return append([]string(nil), v...)
		case string:
			if v != "" {
				return strings.Fields(v)
			}
		}
	}
	return nil
}

// Keys returns the configuration keys in sorted order.
func (c ImportConfig) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

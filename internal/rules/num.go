package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	commaThousands = regexp.MustCompile(`,\d+\.`)
	dotThousands   = regexp.MustCompile(`\.\d+,`)
	numberPrefix   = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	currencyMarks  = strings.NewReplacer("€", "", "$", "", "£", "", "¥", "", "₿", "", "kr", "")
	isoSuffix      = regexp.MustCompile(`^([A-Z]{3})?(.*?)([A-Z]{3})?$`)
)

// Num converts a formatted number into float64. Whitespace and currency marks
// are dropped and the decimal separator is guessed from the layout:
// "12,300.50" and "12.300,50" both give 12300.5. NaN is returned on failure.
func Num(s string) float64 {
	s = strings.Join(strings.Fields(s), "")
	s = currencyMarks.Replace(s)
	if m := isoSuffix.FindStringSubmatch(s); m != nil && (m[1] != "" || m[3] != "") {
		s = m[2]
	}

	switch {
	case commaThousands.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case dotThousands.MatchString(s):
		s = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case strings.Count(s, ",") > 1:
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	default:
		s = strings.Replace(s, ",", ".", 1)
	}

	prefix := numberPrefix.FindString(s)
	if prefix == "" {
		return math.NaN()
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return math.NaN()
	}
	return d.InexactFloat64()
}

// Cents converts a number of currency units into rounded cents.
func Cents(v any) (float64, error) {
	n, ok := v.(float64)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%w %s for cents()", ErrInvalidArgument, describe(v))
	}
	return float64(decimal.NewFromFloat(n).Shift(2).Round(0).IntPart()), nil
}

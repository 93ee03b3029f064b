package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ParseTransfers reads a JSON list of transfers or a single transfer object.
func ParseTransfers(input string) ([]any, error) {
	var value any
	if err := json.Unmarshal([]byte(input), &value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	switch v := value.(type) {
	case []any:
		return v, nil
	case map[string]any:
		return []any{v}, nil
	}
	return nil, errors.New("expected a transfer object or a list of them")
}

// ParseNumber reads a decimal number answer.
func ParseNumber(input string) (float64, error) {
	number, err := decimal.NewFromString(input)
	if err != nil {
		return 0, fmt.Errorf("not a number: %s", input)
	}
	return number.InexactFloat64(), nil
}

// ParseAccount checks that input is an account number.
func ParseAccount(input string) (string, error) {
	if _, err := strconv.ParseUint(input, 10, 64); err != nil {
		return "", errors.New("account numbers contain only digits")
	}
	return input, nil
}

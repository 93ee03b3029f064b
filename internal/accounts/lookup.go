// Package accounts maps symbolic account addresses to conditions on the
// account catalogue and renders those conditions as SQL.
package accounts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/knowledge"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// ErrUnknownAddress is returned in strict mode for addresses without a known mapping.
var ErrUnknownAddress = errors.New("no SQL conversion known for account address")

var defaultWarnings = common.NewOnceLogger(nil)

// Type is the accounting type of an account.
type Type string

// Account types.
const (
	TypeAsset     Type = "ASSET"
	TypeLiability Type = "LIABILITY"
	TypeEquity    Type = "EQUITY"
	TypeRevenue   Type = "REVENUE"
	TypeExpense   Type = "EXPENSE"
)

// Options describe the lookup context. Warnings about unknown addresses go
// through Warnings, so each address is reported once per logger.
type Options struct {
	Warnings        *common.OnceLogger
	DefaultCurrency string
	Plugin          string
	Strict          bool
}

// Condition describes which accounts match an address.
type Condition struct {
	Code        string
	Currency    string
	Plugin      string
	NotPlugin   string
	Types       []Type
	AddChildren bool
}

// Conditions returns the account condition for addr. A nil condition with a
// nil error means the address never maps to an account.
func Conditions(addr model.AccountAddress, opts Options) (*Condition, error) {
	reason, typ, asset, err := addr.Parts()
	if err != nil {
		return nil, err
	}

	cash := func(types ...Type) *Condition {
		return &Condition{Code: "CASH", AddChildren: true, Currency: asset, Plugin: opts.Plugin, Types: types}
	}
	pluginCash := func() *Condition {
		if opts.Plugin == "" {
			return nil
		}
		return cash(TypeAsset)
	}

	switch reason {
	case model.ReasonDebt:
		if typ == model.TypeCurrency {
			return &Condition{Code: "CREDITORS", AddChildren: true, Currency: asset, Plugin: opts.Plugin}, nil
		}
	case model.ReasonDeposit, model.ReasonWithdrawal:
		switch typ {
		case model.TypeCurrency:
			return cash(TypeAsset), nil
		case model.TypeExternal:
			c := cash(TypeAsset)
			c.Plugin, c.NotPlugin = "", opts.Plugin
			return c, nil
		}
	case model.ReasonDistribution:
		return nil, nil
	case model.ReasonDividend:
		if typ == model.TypeCurrency {
			return &Condition{Code: "DIVIDEND", AddChildren: true, Currency: asset, Plugin: opts.Plugin}, nil
		}
	case model.ReasonExpense:
		switch typ {
		case model.TypeCurrency:
			return pluginCash(), nil
		case model.TypeStatement:
			return &Condition{Code: asset, Types: []Type{TypeExpense}}, nil
		}
	case model.ReasonFee:
		if typ == model.TypeCurrency {
			return pluginCash(), nil
		}
	case model.ReasonForex:
		if typ == model.TypeCurrency {
			return &Condition{Code: "CASH", Currency: asset, Plugin: opts.Plugin}, nil
		}
	case model.ReasonIncome:
		switch typ {
		case model.TypeCurrency:
			return pluginCash(), nil
		case model.TypeStatement:
			return &Condition{Code: asset, Types: []Type{TypeRevenue}}, nil
		}
	case model.ReasonInvestment:
		switch typ {
		case model.TypeCurrency:
			return nil, nil
		case model.TypeStatement:
			return &Condition{Code: asset, Plugin: opts.Plugin, Types: []Type{TypeEquity}}, nil
		}
	case model.ReasonTax:
		switch typ {
		case model.TypeCurrency:
			return nil, nil
		case model.TypeStatement:
			return &Condition{Code: asset, Types: []Type{TypeLiability, TypeAsset}}, nil
		}
	case model.ReasonTrade:
		switch typ {
		case model.TypeCurrency:
			return cash(TypeAsset), nil
		case model.TypeStock:
			return &Condition{Code: "CURRENT_PUBLIC_STOCK_SHARES", Plugin: opts.Plugin, Types: []Type{TypeAsset}}, nil
		case model.TypeCrypto:
			return &Condition{Code: "CURRENT_CRYPTOCURRENCIES", Plugin: opts.Plugin, Types: []Type{TypeAsset}}, nil
		}
	case model.ReasonTransfer:
		switch typ {
		case model.TypeCurrency:
			return cash(TypeAsset), nil
		case model.TypeExternal:
			if asset == "NEEDS_MANUAL_INSPECTION" {
				return &Condition{Code: asset}, nil
			}
			return nil, nil
		}
	}

	if opts.Strict {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownAddress, addr)
	}
	warnings := opts.Warnings
	if warnings == nil {
		warnings = defaultWarnings
	}
	warnings.Warn(fmt.Sprintf("No SQL conversion known for account address '%s'", addr))
	return nil, nil
}

// Address2SQL builds an SQL condition matching the accounts of addr. The
// account rows are expected to have a type column and a JSON data column.
// An empty string means no account can match. The knowledge base, when given,
// extends codes with all their child codes.
func Address2SQL(addr model.AccountAddress, opts Options, kb *knowledge.Base) (string, error) {
	cond, err := Conditions(addr, opts)
	if err != nil || cond == nil {
		return "", err
	}
	if kb == nil {
		kb = knowledge.Empty()
	}

	var extra []string
	if cond.Currency != "" && cond.Currency == opts.DefaultCurrency {
		extra = append(extra, fmt.Sprintf("(data->>'currency' = %s OR data->>'currency' IS NULL)", quote(cond.Currency)))
		cond.Currency = ""
	}
	if len(cond.Types) > 0 {
		types := make([]string, len(cond.Types))
		for i, t := range cond.Types {
			types[i] = "type = " + quote(string(t))
		}
		extra = append(extra, "("+strings.Join(types, " OR ")+")")
	}

	codes := []string{cond.Code}
	if cond.AddChildren {
		codes = append(codes, kb.Children(cond.Code)...)
	}

	var sql []string
	if len(codes) > 1 {
		quoted := make([]string, len(codes))
		for i, c := range codes {
			quoted[i] = quote(c)
		}
		sql = append(sql, fmt.Sprintf("(data->>'code' IN (%s))", strings.Join(quoted, ", ")))
	} else {
		sql = append(sql, equals("code", cond.Code))
	}
	if cond.Currency != "" {
		sql = append(sql, equals("currency", cond.Currency))
	}
	if cond.Plugin != "" {
		sql = append(sql, equals("plugin", cond.Plugin))
	}
	if cond.NotPlugin != "" {
		sql = append(sql, fmt.Sprintf("(data->>'plugin' != %s)", quote(cond.NotPlugin)))
	}

	return strings.Join(append(sql, extra...), " AND "), nil
}

func equals(key, value string) string {
	return fmt.Sprintf("(data->>'%s' = %s)", key, quote(value))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

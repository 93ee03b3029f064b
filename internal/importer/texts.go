package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/rules"
)

// ErrUnsupportedTransfers is returned for transfer combinations analysis has
// no transaction kind for.
var ErrUnsupportedTransfers = errors.New("unsupported combination of transfers")

// Transaction kinds.
const (
	KindNone         = "none"
	KindBuy          = "buy"
	KindCorrection   = "correction"
	KindDeposit      = "deposit"
	KindDistribution = "distribution"
	KindDividend     = "dividend"
	KindExpense      = "expense"
	KindFee          = "fee"
	KindForex        = "forex"
	KindIncome       = "income"
	KindInvestment   = "investment"
	KindSell         = "sell"
	KindShortBuy     = "short-buy"
	KindShortSell    = "short-sell"
	KindTax          = "tax"
	KindTrade        = "trade"
	KindTransfer     = "transfer"
	KindWithdrawal   = "withdrawal"
)

// Notes used by renaming segments.
const (
	noteRenamed = "Renamed"
	noteOldName = "Old name"
	noteNewName = "New name"
)

// kindValues are the facts a transaction text is built from.
type kindValues struct {
	Name       string
	Asset      string
	Service    string
	Exchange   string
	GiveAsset  string
	TakeAsset  string
	GiveAmount float64
	TakeAmount float64
}

// transferKind works out what kind of transaction the transfers form.
func transferKind(transfers []model.AssetTransfer, exchange string) (string, kindValues, error) {
	values := kindValues{Exchange: exchange}
	if len(transfers) == 0 {
		return KindNone, values, nil
	}

	find := func(reason model.Reason, types ...model.AssetType) (model.AssetTransfer, bool) {
		for _, t := range transfers {
			if t.Reason != reason {
				continue
			}
			if len(types) == 0 {
				return t, true
			}
			for _, typ := range types {
				if t.Type == typ {
					return t, true
				}
			}
		}
		return model.AssetTransfer{}, false
	}
	amount := func(t model.AssetTransfer) float64 {
		if t.Amount == nil {
			return 0
		}
		return *t.Amount
	}

	if _, ok := find(model.ReasonTrade); ok {
		money, hasMoney := find(model.ReasonTrade, model.TypeCurrency)
		short, hasShort := find(model.ReasonTrade, model.TypeShort)
		switch {
		case hasMoney && hasShort:
			if amount(short) < 0 {
				values.GiveAmount, values.GiveAsset = amount(short), short.Asset
				return KindShortSell, values, nil
			}
			values.TakeAmount, values.TakeAsset = amount(short), short.Asset
			return KindShortBuy, values, nil
		case hasMoney:
			asset, ok := find(model.ReasonTrade, model.TypeCrypto, model.TypeStock)
			if !ok {
				break
			}
			if amount(money) < 0 {
				values.TakeAmount, values.TakeAsset = amount(asset), asset.Asset
				return KindBuy, values, nil
			}
			values.GiveAmount, values.GiveAsset = amount(asset), asset.Asset
			return KindSell, values, nil
		default:
			var give, take *model.AssetTransfer
			for i := range transfers {
				t := &transfers[i]
				if t.Reason != model.ReasonTrade || (t.Type != model.TypeCrypto && t.Type != model.TypeStock) {
					continue
				}
				if amount(*t) < 0 && give == nil {
					give = t
				} else if amount(*t) >= 0 && take == nil {
					take = t
				}
			}
			if give != nil && take != nil {
				values.GiveAmount, values.GiveAsset = amount(*give), give.Asset
				values.TakeAmount, values.TakeAsset = amount(*take), take.Asset
				return KindTrade, values, nil
			}
		}
		return "", values, fmt.Errorf("%w: trade of %s", ErrUnsupportedTransfers, describeTransfers(transfers))
	}

	if _, ok := find(model.ReasonForex, model.TypeCurrency); ok {
		for _, t := range transfers {
			if t.Reason != model.ReasonForex || t.Type != model.TypeCurrency {
				continue
			}
			if amount(t) < 0 {
				values.GiveAmount, values.GiveAsset = amount(t), t.Asset
			} else {
				values.TakeAmount, values.TakeAsset = amount(t), t.Asset
			}
		}
		return KindForex, values, nil
	}

	if t, ok := find(model.ReasonDividend); ok {
		values.Asset = t.Asset
		return KindDividend, values, nil
	}

	if t, ok := find(model.ReasonIncome, model.TypeStatement); ok {
		values.Name = statementName(t.Asset)
		return KindIncome, values, nil
	}
	if t, ok := find(model.ReasonIncome, model.TypeAccount); ok {
		values.Name = dataText(t)
		return KindIncome, values, nil
	}

	if t, ok := find(model.ReasonInvestment); ok {
		values.Name = statementName(t.Asset)
		return KindInvestment, values, nil
	}

	if t, ok := find(model.ReasonExpense, model.TypeStatement); ok {
		values.Name = statementName(t.Asset)
		return KindExpense, values, nil
	}
	if t, ok := find(model.ReasonExpense, model.TypeAccount); ok {
		values.Name = dataText(t)
		return KindExpense, values, nil
	}

	if t, ok := find(model.ReasonDistribution); ok {
		values.Name = statementName(t.Asset)
		return KindDistribution, values, nil
	}

	if _, ok := find(model.ReasonDeposit, model.TypeExternal); ok {
		return KindDeposit, values, nil
	}
	if _, ok := find(model.ReasonWithdrawal); ok {
		return KindWithdrawal, values, nil
	}
	if t, ok := find(model.ReasonTransfer, model.TypeExternal); ok {
		values.Service = t.Asset
		return KindTransfer, values, nil
	}
	if t, ok := find(model.ReasonCorrection); ok {
		values.Name = statementName(t.Asset)
		return KindCorrection, values, nil
	}
	if t, ok := find(model.ReasonTax); ok {
		values.Name = statementName(t.Asset)
		return KindTax, values, nil
	}
	if t, ok := find(model.ReasonFee); ok {
		values.Name = statementName(t.Asset)
		return KindFee, values, nil
	}

	return "", values, fmt.Errorf("%w: %s", ErrUnsupportedTransfers, describeTransfers(transfers))
}

// kindText renders the default English description of a transaction kind.
func kindText(kind string, v kindValues) string {
	switch kind {
	case KindBuy:
		return fmt.Sprintf("Buy %s %s", signed(v.TakeAmount), v.TakeAsset)
	case KindSell:
		return fmt.Sprintf("Sell %s %s", signed(v.GiveAmount), v.GiveAsset)
	case KindShortBuy:
		return fmt.Sprintf("Closing short position %s %s", signed(v.TakeAmount), v.TakeAsset)
	case KindShortSell:
		return fmt.Sprintf("Short selling %s %s", signed(v.GiveAmount), v.GiveAsset)
	case KindTrade:
		return fmt.Sprintf("Trade %s %s %s %s", signed(v.GiveAmount), v.GiveAsset, signed(v.TakeAmount), v.TakeAsset)
	case KindForex:
		return fmt.Sprintf("Sell currency %s for %s", v.GiveAsset, v.TakeAsset)
	case KindDividend:
		return fmt.Sprintf("Dividend %s", v.Asset)
	case KindDeposit:
		return fmt.Sprintf("Deposit to %s service", v.Exchange)
	case KindWithdrawal:
		return fmt.Sprintf("Withdrawal from %s service", v.Exchange)
	case KindTransfer:
		return fmt.Sprintf("%s transfer", v.Service)
	case KindNone:
		return ""
	default:
		return v.Name
	}
}

func signed(f float64) string {
	s := rules.ToString(f)
	if f >= 0 {
		return "+" + s
	}
	return s
}

// statementName turns codes like OFFICE_SUPPLIES into "Office supplies".
func statementName(code string) string {
	if code == "" {
		return ""
	}
	name := strings.ToLower(strings.ReplaceAll(code, "_", " "))
	return strings.ToUpper(name[:1]) + name[1:]
}

func dataText(t model.AssetTransfer) string {
	if s, ok := t.Data["text"].(string); ok && s != "" {
		return s
	}
	return statementName(t.Asset)
}

func notesSuffix(data map[string]any) string {
	list, ok := data["notes"].([]any)
	if !ok || len(list) == 0 {
		return ""
	}
	notes := make([]string, 0, len(list))
	for _, n := range list {
		if s := rules.ToString(n); s != "" {
			notes = append(notes, s)
		}
	}
	if len(notes) == 0 {
		return ""
	}
	return " (" + strings.Join(notes, ", ") + ")"
}

func hasNote(data map[string]any, note string) bool {
	list, _ := data["notes"].([]any)
	for _, n := range list {
		if n == note {
			return true
		}
	}
	return false
}

func describeTransfers(transfers []model.AssetTransfer) string {
	parts := make([]string, len(transfers))
	for i, t := range transfers {
		parts[i] = string(t.Address())
	}
	return strings.Join(parts, ", ")
}

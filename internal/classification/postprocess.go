package classification

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/rules"
)

// ErrMultipleVATCurrencies is returned when VAT would be split between several currencies.
var ErrMultipleVATCurrencies = errors.New("cannot sort out VAT for multiple currencies")

// VAT transfer targets.
const (
	VATFromPurchases = "VAT_FROM_PURCHASES"
	VATFromSales     = "VAT_FROM_SALES"
)

var vatReasons = map[model.Reason]bool{
	model.ReasonDividend: true,
	model.ReasonIncome:   true,
	model.ReasonExpense:  true,
}

// postProcess separates VAT from the transfers that carry it.
func (r *Resolver) postProcess(segment model.ImportSegment, transfers []model.AssetTransfer) ([]model.AssetTransfer, error) {
	currencies := make(map[string]bool)
	for _, t := range transfers {
		if vatReasons[t.Reason] && t.Type == model.TypeCurrency {
			currencies[t.Asset] = true
		}
	}
	if len(currencies) > 1 {
		return nil, fmt.Errorf("%w: %v", ErrMultipleVATCurrencies, sortedSet(currencies))
	}
	if len(currencies) == 0 {
		return transfers, nil
	}
	currency := sortedSet(currencies)[0]

	out := make([]model.AssetTransfer, 0, len(transfers)+1)
	var vatTransfers []model.AssetTransfer
	for _, t := range transfers {
		t = t.Clone()
		pct := r.vatPercentage(segment, t)
		vatValue, hasVATValue := numberData(t.Data, "vatValue")

		if (pct != 0 || vatValue != 0) && t.Amount != nil && *t.Amount != 0 {
			oldAmount, err := rules.Cents(*t.Amount)
			if err != nil {
				return nil, err
			}
			var newAmount float64
			if hasVATValue {
				newAmount = math.Round(oldAmount - vatValue*100)
			} else {
				newAmount = math.Round(oldAmount / (1 + pct/100))
			}
			t.Amount = model.Float(newAmount / 100)
			vat := oldAmount - newAmount

			entry := model.AssetTransfer{
				Reason: model.ReasonTax,
				Type:   model.TypeStatement,
				Asset:  VATFromSales,
				Amount: model.Float(vat / 100),
				Data:   map[string]any{"currency": currency},
			}
			if vat > 0 {
				entry.Asset = VATFromPurchases
			}
			if t.Tags != nil {
				entry.Tags = append([]string(nil), t.Tags...)
			}
			vatTransfers = append(vatTransfers, entry)
		}
		out = append(out, t)
	}
	return append(out, vatTransfers...), nil
}

// vatPercentage returns the explicit data.vat of a transfer or the VAT of the
// statement target from the knowledge base.
func (r *Resolver) vatPercentage(segment model.ImportSegment, t model.AssetTransfer) float64 {
	if pct, ok := numberData(t.Data, "vat"); ok {
		return pct
	}
	if t.Type != model.TypeStatement || (t.Reason != model.ReasonIncome && t.Reason != model.ReasonExpense) {
		return 0
	}
	pct, _ := r.knowledge.VAT(t.Asset, segment.Time)
	return pct
}

func numberData(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, false
	}
	switch x := rules.Normalize(v).(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case string:
		n := rules.Num(x)
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// toTransfer builds a transfer from evaluated fields.
func toTransfer(fields map[string]any) (model.AssetTransfer, error) {
	reason, _ := fields["reason"].(string)
	typ, _ := fields["type"].(string)
	asset, _ := fields["asset"].(string)
	if reason == "" || typ == "" || asset == "" || asset == "undefined" || asset == "null" {
		return model.AssetTransfer{}, fmt.Errorf("%w: %s", ErrIncompleteTransfer, describe(fields))
	}
	if !model.IsTransferReason(reason) {
		return model.AssetTransfer{}, fmt.Errorf("%w: invalid reason '%s'", ErrIncompleteTransfer, reason)
	}
	if !model.IsAssetType(typ) {
		return model.AssetTransfer{}, fmt.Errorf("%w: invalid type '%s'", ErrIncompleteTransfer, typ)
	}

	t := model.AssetTransfer{
		Reason: model.Reason(reason),
		Type:   model.AssetType(typ),
		Asset:  asset,
	}
	switch amount := fields["amount"].(type) {
	case nil:
	case float64:
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return model.AssetTransfer{}, fmt.Errorf("%w: invalid amount in %s", ErrIncompleteTransfer, describe(fields))
		}
		t.Amount = model.Float(amount)
	default:
		return model.AssetTransfer{}, fmt.Errorf("%w: invalid amount in %s", ErrIncompleteTransfer, describe(fields))
	}
	if value, ok := fields["value"].(float64); ok && !math.IsNaN(value) {
		t.Value = model.Cents(int64(math.Round(value)))
	}
	if text, ok := fields["text"]; ok && text != nil {
		t.Text = rules.ToString(text)
	}
	if data, ok := fields["data"].(map[string]any); ok {
		t.Data = model.CloneMap(data)
	}
	if tags, ok := fields["tags"]; ok && tags != nil {
		bundled, err := bundleTags(tags)
		if err != nil {
			return model.AssetTransfer{}, err
		}
		t.Tags = bundled
	}
	return t, nil
}

// bundleTags turns a tag map into the sorted list of tags whose condition is
// true. Lists are kept as they are.
func bundleTags(tags any) ([]string, error) {
	switch x := tags.(type) {
	case map[string]any:
		out := make([]string, 0, len(x))
		for tag, v := range x {
			if rules.Truthy(v) {
				out = append(out, tag)
			}
		}
		sort.Strings(out)
		return out, nil
	case []any:
		out := make([]string, 0, len(x))
		for _, v := range x {
			if rules.Truthy(v) {
				out = append(out, rules.ToString(v))
			}
		}
		return out, nil
	case string:
		return parseTagString(x)
	default:
		return nil, fmt.Errorf("invalid tags %s", describe(tags))
	}
}

// parseTagString accepts the "[A][B]" notation.
func parseTagString(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var tags []string
	for len(s) > 0 {
		if s[0] != '[' {
			return nil, fmt.Errorf("invalid tags %q", s)
		}
		end := 1
		for end < len(s) && s[end] != ']' {
			end++
		}
		if end == len(s) || end == 1 {
			return nil, fmt.Errorf("invalid tags %q", s)
		}
		tags = append(tags, s[1:end])
		s = s[end+1:]
	}
	return tags, nil
}

func decodeJSON(v any, target any) error {
	data, err := json.Marshal(rules.Normalize(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

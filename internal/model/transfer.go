package model

import (
	"fmt"
	"strings"
)

// Reason describes why value moves in an asset transfer.
type Reason string

// Transfer reasons.
const (
	ReasonCorrection   Reason = "correction"
	ReasonDebt         Reason = "debt"
	ReasonDeposit      Reason = "deposit"
	ReasonDistribution Reason = "distribution"
	ReasonDividend     Reason = "dividend"
	ReasonExpense      Reason = "expense"
	ReasonFee          Reason = "fee"
	ReasonForex        Reason = "forex"
	ReasonIncome       Reason = "income"
	ReasonInvestment   Reason = "investment"
	ReasonTax          Reason = "tax"
	ReasonTrade        Reason = "trade"
	ReasonTransfer     Reason = "transfer"
	ReasonWithdrawal   Reason = "withdrawal"
)

// AssetType classifies the asset moved by a transfer.
type AssetType string

// Asset types.
const (
	TypeAccount   AssetType = "account"
	TypeStock     AssetType = "stock"
	TypeShort     AssetType = "short"
	TypeCurrency  AssetType = "currency"
	TypeDebt      AssetType = "debt"
	TypeCrypto    AssetType = "crypto"
	TypeExternal  AssetType = "external"
	TypeStatement AssetType = "statement"
	TypeOther     AssetType = "other"
)

var transferReasons = map[Reason]bool{
	ReasonCorrection: true, ReasonDeposit: true, ReasonDistribution: true, ReasonDividend: true,
	ReasonExpense: true, ReasonFee: true, ReasonForex: true, ReasonIncome: true,
	ReasonInvestment: true, ReasonTax: true, ReasonTrade: true, ReasonTransfer: true,
	ReasonWithdrawal: true,
}

var assetTypes = map[AssetType]bool{
	TypeAccount: true, TypeStock: true, TypeShort: true, TypeCurrency: true, TypeDebt: true,
	TypeCrypto: true, TypeExternal: true, TypeStatement: true, TypeOther: true,
}

// IsTransferReason reports whether s is a reason usable in an asset transfer.
func IsTransferReason(s string) bool {
	return transferReasons[Reason(s)]
}

// IsAssetType reports whether s is a known asset type.
func IsAssetType(s string) bool {
	return assetTypes[AssetType(s)]
}

// AssetTransfer describes one atomic movement of value.
// Value is in cents of the default currency.
type AssetTransfer struct {
	Amount *float64       `json:"amount,omitempty"`
	Value  *int64         `json:"value,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Reason Reason         `json:"reason"`
	Type   AssetType      `json:"type"`
	Asset  string         `json:"asset"`
	Text   string         `json:"text,omitempty"`
	Tags   []string       `json:"tags,omitempty"`
}

// Address returns the account address of the transfer.
func (t AssetTransfer) Address() AccountAddress {
	return NewAddress(t.Reason, t.Type, t.Asset)
}

// Clone returns a deep copy of the transfer.
func (t AssetTransfer) Clone() AssetTransfer {
	if t.Amount != nil {
		t.Amount = Float(*t.Amount)
	}
	if t.Value != nil {
		t.Value = Cents(*t.Value)
	}
	if t.Tags != nil {
		t.Tags = append([]string(nil), t.Tags...)
	}
	if t.Data != nil {
		t.Data = CloneMap(t.Data)
	}
	return t
}

// SetData stores a key in the transfer data, allocating the map when needed.
func (t *AssetTransfer) SetData(key string, value any) {
	if t.Data == nil {
		t.Data = make(map[string]any)
	}
	t.Data[key] = value
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Cents returns a pointer to v.
func Cents(v int64) *int64 {
	return &v
}

// AccountAddress is a symbolic account key of the form reason.type.asset.
type AccountAddress string

// NewAddress builds an account address.
func NewAddress(reason Reason, typ AssetType, asset string) AccountAddress {
	return AccountAddress(fmt.Sprintf("%s.%s.%s", reason, typ, asset))
}

// Parts splits the address into reason, type and asset.
func (a AccountAddress) Parts() (Reason, AssetType, string, error) {
	parts := strings.SplitN(string(a), ".", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed account address %q", string(a))
	}
	return Reason(parts[0]), AssetType(parts[1]), parts[2], nil
}

// CloneMap deep copies JSON shaped data.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep copies a JSON shaped value.
func CloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = CloneValue(e)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = e
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// ErrStockOrder is returned when a delta precedes the latest snapshot of an asset.
var ErrStockOrder = errors.New("stock change precedes the latest snapshot")

// StockType is the class of an asset in the stock ledger.
type StockType string

// Stock types.
const (
	StockCrypto   StockType = "crypto"
	StockStock    StockType = "stock"
	StockCurrency StockType = "currency"
	StockOther    StockType = "other"
)

var stockTypes = []StockType{StockCrypto, StockStock, StockCurrency, StockOther}

// IsStockType reports whether s names a stock type.
func IsStockType(s string) bool {
	for _, t := range stockTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// AssetRecord is the amount and value of an asset at a moment.
type AssetRecord struct {
	Time   time.Time `json:"time"`
	Amount float64   `json:"amount"`
	Value  float64   `json:"value"`
}

// StockValue is an amount and a value, either absolute or a delta.
type StockValue struct {
	Amount float64 `json:"amount"`
	Value  float64 `json:"value"`
}

// StockChange is the stock payload of transfer data: fixed snapshots under
// Set and deltas under Change, both keyed by asset.
type StockChange struct {
	Set    map[string]StockValue `json:"set,omitempty"`
	Change map[string]StockValue `json:"change,omitempty"`
}

// TimedStockChange is a stock change applied at a moment.
type TimedStockChange struct {
	Time time.Time
	Data StockChange
}

// AssetKey identifies an asset of a stock type.
type AssetKey struct {
	Type  StockType
	Asset string
}

// AssetTotal is the latest amount of an asset.
type AssetTotal struct {
	Type   StockType
	Asset  string
	Amount float64
}

// StockSummaryEntry is the latest snapshot of an asset in a summary.
type StockSummaryEntry struct {
	Time   *time.Time `json:"time,omitempty"`
	Amount float64    `json:"amount"`
	Value  float64    `json:"value"`
}

// Stock tracks amounts and values of assets over time.
type Stock struct {
	logger *slog.Logger
	stock  map[StockType]map[string][]AssetRecord
}

// NewStock creates an empty stock ledger.
func NewStock(logger *slog.Logger) *Stock {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stock{logger: logger}
	s.Reset()
	return s
}

// Reset drops all records.
func (s *Stock) Reset() {
	s.stock = make(map[StockType]map[string][]AssetRecord, len(stockTypes))
	for _, t := range stockTypes {
		s.stock[t] = make(map[string][]AssetRecord)
	}
}

func (s *Stock) records(typ StockType) map[string][]AssetRecord {
	m, ok := s.stock[typ]
	if !ok {
		m = make(map[string][]AssetRecord)
		s.stock[typ] = m
	}
	return m
}

// Set records a fixed snapshot. Snapshots may be inserted anywhere in history.
func (s *Stock) Set(t time.Time, typ StockType, asset string, amount, value float64) {
	records := append(s.records(typ)[asset], AssetRecord{Time: t, Amount: amount, Value: value})
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	s.records(typ)[asset] = records
	s.logger.Debug("Stock set", "time", t, "type", typ, "asset", asset, "amount", amount, "value", value)
}

// Has reports whether an asset has records.
func (s *Stock) Has(typ StockType, asset string) bool {
	return len(s.stock[typ][asset]) > 0
}

// Last returns the latest snapshot of an asset.
func (s *Stock) Last(typ StockType, asset string) (AssetRecord, bool) {
	records := s.stock[typ][asset]
	if len(records) == 0 {
		return AssetRecord{}, false
	}
	return records[len(records)-1], true
}

// Change appends a delta on top of the latest snapshot. The time must not be
// before the latest snapshot. An asset without records is set to the delta.
func (s *Stock) Change(t time.Time, typ StockType, asset string, amount, value float64) error {
	last, ok := s.Last(typ, asset)
	if !ok {
		s.Set(t, typ, asset, amount, value)
		return nil
	}
	if t.Before(last.Time) {
		return fmt.Errorf("%w: cannot insert %s %s at %s, since last timestamp is %s",
			ErrStockOrder, typ, asset, t.Format(time.RFC3339), last.Time.Format(time.RFC3339))
	}
	record := AssetRecord{
		Time:   t,
		Amount: addExact(last.Amount, amount),
		Value:  addExact(last.Value, value),
	}
	s.stock[typ][asset] = append(s.stock[typ][asset], record)
	s.logger.Debug("Stock change", "time", t, "type", typ, "asset", asset,
		"delta", amount, "deltaValue", value, "amount", record.Amount, "value", record.Value)
	return nil
}

// Get returns the latest snapshot at or before t, or a zero record.
func (s *Stock) Get(t time.Time, typ StockType, asset string) AssetRecord {
	records := s.stock[typ][asset]
	i := len(records) - 1
	for i >= 0 && records[i].Time.After(t) {
		i--
	}
	if i < 0 {
		return AssetRecord{Time: t}
	}
	return records[i]
}

// TypeOf guesses the stock type of an asset from its code and the records.
func (s *Stock) TypeOf(asset string) StockType {
	switch {
	case model.IsCurrency(asset):
		return StockCurrency
	case s.Has(StockCrypto, asset):
		return StockCrypto
	case s.Has(StockStock, asset):
		return StockStock
	}
	return StockOther
}

// Apply applies fixed snapshots first and deltas after them.
func (s *Stock) Apply(t time.Time, data StockChange) error {
	for _, asset := range sortedAssets(data.Set) {
		v := data.Set[asset]
		s.Set(t, s.TypeOf(asset), asset, v.Amount, v.Value)
	}
	for _, asset := range sortedAssets(data.Change) {
		v := data.Change[asset]
		if err := s.Change(t, s.TypeOf(asset), asset, v.Amount, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// ApplyAll applies changes in the given order.
func (s *Stock) ApplyAll(changes []TimedStockChange) error {
	for _, c := range changes {
		if err := s.Apply(c.Time, c.Data); err != nil {
			return err
		}
	}
	return nil
}

// EntryStockChange returns the stock change recorded in the data of a
// transaction entry and the stock type it applies to.
func EntryStockChange(data map[string]any) (StockChange, StockType, bool) {
	change, ok := ParseStockChange(data)
	if !ok || len(change.Change) == 0 {
		return StockChange{}, "", false
	}
	typ := StockOther
	if s, ok := data["stockType"].(string); ok && IsStockType(s) {
		typ = StockType(s)
	}
	return change, typ, true
}

// ApplyEntry applies the deltas recorded in the data of a transaction entry,
// either all of them or none. Entries without stock data are ignored.
func (s *Stock) ApplyEntry(t time.Time, data map[string]any) error {
	change, typ, ok := EntryStockChange(data)
	if !ok {
		return nil
	}
	assets := sortedAssets(change.Change)
	for _, asset := range assets {
		if last, ok := s.Last(typ, asset); ok && t.Before(last.Time) {
			return fmt.Errorf("%w: cannot insert %s %s at %s, since last timestamp is %s",
				ErrStockOrder, typ, asset, t.Format(time.RFC3339), last.Time.Format(time.RFC3339))
		}
	}
	for _, asset := range assets {
		v := change.Change[asset]
		if err := s.Change(t, typ, asset, v.Amount, v.Value); err != nil {
			return err
		}
	}
	return nil
}

// ChangedAssets lists the assets named in a stock change.
func ChangedAssets(data StockChange) []string {
	seen := make(map[string]bool)
	var assets []string
	for _, asset := range append(sortedAssets(data.Change), sortedAssets(data.Set)...) {
		if !seen[asset] {
			seen[asset] = true
			assets = append(assets, asset)
		}
	}
	return assets
}

// Assets lists every recorded asset ordered by type and code.
func (s *Stock) Assets() []AssetKey {
	var keys []AssetKey
	for _, typ := range s.types() {
		for _, asset := range sortedAssets(s.stock[typ]) {
			if s.Has(typ, asset) {
				keys = append(keys, AssetKey{Type: typ, Asset: asset})
			}
		}
	}
	return keys
}

func (s *Stock) types() []StockType {
	types := make([]StockType, 0, len(s.stock))
	for typ := range s.stock {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Totals returns the latest amount of every asset.
func (s *Stock) Totals() []AssetTotal {
	keys := s.Assets()
	totals := make([]AssetTotal, 0, len(keys))
	for _, k := range keys {
		last, _ := s.Last(k.Type, k.Asset)
		totals = append(totals, AssetTotal{Type: k.Type, Asset: k.Asset, Amount: last.Amount})
	}
	return totals
}

// Total returns the latest amount of an asset, guessing its type.
func (s *Stock) Total(asset string) float64 {
	last, _ := s.Last(s.TypeOf(asset), asset)
	return last.Amount
}

// Value returns the latest value of an asset, guessing its type.
func (s *Stock) Value(asset string) float64 {
	last, _ := s.Last(s.TypeOf(asset), asset)
	return last.Value
}

// Summary returns the latest snapshot of each asset keyed by type.asset, or by
// asset alone when addType is false. Assets with an absolute amount below
// epsilon are left out when epsilon is positive.
func (s *Stock) Summary(epsilon float64, addType, addTime bool) map[string]StockSummaryEntry {
	result := make(map[string]StockSummaryEntry)
	for _, k := range s.Assets() {
		last, _ := s.Last(k.Type, k.Asset)
		if epsilon > 0 && math.Abs(last.Amount) < epsilon {
			continue
		}
		key := k.Asset
		if addType {
			key = string(k.Type) + "." + k.Asset
		}
		entry := StockSummaryEntry{Amount: last.Amount, Value: last.Value}
		if addTime {
			t := last.Time
			entry.Time = &t
		}
		result[key] = entry
	}
	return result
}

// JSON sums the latest amounts per asset over all types.
func (s *Stock) JSON() map[string]float64 {
	sum := make(map[string]float64)
	for _, total := range s.Totals() {
		sum[total.Asset] = addExact(sum[total.Asset], total.Amount)
	}
	return sum
}

// Clone returns an independent copy of the ledger.
func (s *Stock) Clone() *Stock {
	out := &Stock{logger: s.logger, stock: make(map[StockType]map[string][]AssetRecord, len(s.stock))}
	for typ, assets := range s.stock {
		out.stock[typ] = make(map[string][]AssetRecord, len(assets))
		for asset, records := range assets {
			out.stock[typ][asset] = append([]AssetRecord(nil), records...)
		}
	}
	return out
}

// ParseStockChange reads data.stock of transfer data.
func ParseStockChange(data map[string]any) (StockChange, bool) {
	raw, ok := data["stock"].(map[string]any)
	if !ok {
		return StockChange{}, false
	}
	change := StockChange{
		Set:    parseStockValues(raw["set"]),
		Change: parseStockValues(raw["change"]),
	}
	return change, change.Set != nil || change.Change != nil
}

func parseStockValues(v any) map[string]StockValue {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]StockValue, len(m))
	for asset, raw := range m {
		entry, _ := raw.(map[string]any)
		out[asset] = StockValue{Amount: toFloat(entry["amount"]), Value: toFloat(entry["value"])}
	}
	return out
}

// Map renders the change as transfer data.
func (c StockChange) Map() map[string]any {
	out := make(map[string]any)
	render := func(values map[string]StockValue) map[string]any {
		m := make(map[string]any, len(values))
		for asset, v := range values {
			m[asset] = map[string]any{"amount": v.Amount, "value": v.Value}
		}
		return m
	}
	if c.Set != nil {
		out["set"] = render(c.Set)
	}
	if c.Change != nil {
		out["change"] = render(c.Change)
	}
	return out
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}

func addExact(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).InexactFloat64()
}

func sortedAssets[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

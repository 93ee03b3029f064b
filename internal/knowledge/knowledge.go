// Package knowledge holds static bookkeeping knowledge: the income, expense
// and asset code trees and the VAT percentages valid for date ranges.
//
// A Base is immutable once built. Lookups walk the parent links of its trees
// directly and keep no cache.
package knowledge

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"time"
)

// DateLayout is the layout of VAT range dates.
const DateLayout = "2006-01-02"

// Tree is a tree of codes stored as child lists and parent links.
// An empty parent marks a root.
type Tree struct {
	Children map[string][]string `json:"children"`
	Parents  map[string]string   `json:"parents"`
	Root     string              `json:"root"`
}

// VATRange lists VAT percentages valid from From to To inclusive.
// An empty To means the range is still valid.
type VATRange struct {
	Percentage map[string]float64 `json:"percentage"`
	From       string             `json:"from"`
	To         string             `json:"to"`
}

// Data is the serialized form of a knowledge base.
type Data struct {
	Income     Tree       `json:"income"`
	Expense    Tree       `json:"expense"`
	AssetCodes Tree       `json:"assetCodes"`
	TaxTypes   []string   `json:"taxTypes"`
	VAT        []VATRange `json:"vat"`
}

// VATTableEntry is one row of the VAT table.
type VATTableEntry struct {
	ID    string
	Name  string
	Level int
	Value float64
}

// Base is an immutable knowledge snapshot.
type Base struct {
	data Data
}

var trailingDigits = regexp.MustCompile(`[0-9]+$`)

// New builds a snapshot from data. The data is copied.
func New(data Data) *Base {
	return &Base{data: Data{
		Income:     data.Income.clone(),
		Expense:    data.Expense.clone(),
		AssetCodes: data.AssetCodes.clone(),
		TaxTypes:   append([]string(nil), data.TaxTypes...),
		VAT:        cloneRanges(data.VAT),
	}}
}

// Empty returns a snapshot without any knowledge.
func Empty() *Base {
	return New(Data{})
}

// Load decodes a JSON knowledge base.
func Load(r io.Reader) (*Base, error) {
	var data Data
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base: %w", err)
	}
	return New(data), nil
}

// LoadFile reads a JSON knowledge base from path.
func LoadFile(path string) (*Base, error) {
	f, err := os.Open(path) //nolint:gosec // path is user configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

func (t Tree) clone() Tree {
	out := Tree{
		Root:     t.Root,
		Children: make(map[string][]string, len(t.Children)),
		Parents:  make(map[string]string, len(t.Parents)),
	}
	for k, v := range t.Children {
		out.Children[k] = append([]string(nil), v...)
	}
	for k, v := range t.Parents {
		out.Parents[k] = v
	}
	return out
}

func (t Tree) has(code string) bool {
	_, ok := t.Parents[code]
	return ok
}

func cloneRanges(ranges []VATRange) []VATRange {
	out := make([]VATRange, len(ranges))
	for i, r := range ranges {
		out[i] = VATRange{From: r.From, To: r.To, Percentage: make(map[string]float64, len(r.Percentage))}
		for k, v := range r.Percentage {
			out[i].Percentage[k] = v
		}
	}
	return out
}

// IsIncome reports whether code belongs to the income tree.
func (b *Base) IsIncome(code string) bool {
	return b.data.Income.has(code)
}

// IsExpense reports whether code belongs to the expense tree.
func (b *Base) IsExpense(code string) bool {
	return b.data.Expense.has(code)
}

// Counts returns the number of entries of each kind.
func (b *Base) Counts() map[string]int {
	return map[string]int{
		"assets":  len(b.data.AssetCodes.Parents),
		"income":  len(b.data.Income.Parents),
		"expense": len(b.data.Expense.Parents),
		"vat":     len(b.data.VAT),
	}
}

func (b *Base) findTree(code string) Tree {
	switch {
	case b.data.AssetCodes.has(code):
		return b.data.AssetCodes
	case b.data.Income.has(code):
		return b.data.Income
	case b.data.Expense.has(code):
		return b.data.Expense
	}
	return Tree{}
}

// Children returns all descendants of code: direct children first, then the
// descendants of each child in order.
func (b *Base) Children(code string) []string {
	return children(code, b.findTree(code))
}

func children(code string, tree Tree) []string {
	direct := tree.Children[code]
	out := append([]string(nil), direct...)
	for _, child := range direct {
		out = append(out, children(child, tree)...)
	}
	return out
}

// Lookup walks from code towards the root of tree and returns the first value
// found from table.
func Lookup[V any](code string, table map[string]V, tree Tree) (V, bool) {
	seen := make(map[string]bool)
	for code != "" && !seen[code] {
		if v, ok := table[code]; ok {
			return v, true
		}
		seen[code] = true
		code = tree.Parents[code]
	}
	var zero V
	return zero, false
}

// FindVATRange returns the VAT range containing date.
func (b *Base) FindVATRange(date time.Time) (VATRange, bool) {
	day := date.Format(DateLayout)
	for _, r := range b.data.VAT {
		if r.From <= day && (r.To == "" || day <= r.To) {
			return r, true
		}
	}
	return VATRange{}, false
}

// VAT returns the VAT percentage for an income or expense code at date.
// Trailing digits of the code are ignored.
func (b *Base) VAT(code string, date time.Time) (float64, bool) {
	if code == "" {
		return 0, false
	}
	code = trailingDigits.ReplaceAllString(code, "")
	r, ok := b.FindVATRange(date)
	if !ok {
		return 0, false
	}
	switch {
	case b.IsIncome(code):
		return Lookup(code, r.Percentage, b.data.Income)
	case b.IsExpense(code):
		return Lookup(code, r.Percentage, b.data.Expense)
	}
	return 0, false
}

// VATTable lists every income and expense code on a path from a root to a code
// with an explicit VAT percentage, together with its effective percentage.
func (b *Base) VATTable(date time.Time) []VATTableEntry {
	r, ok := b.FindVATRange(date)
	if !ok {
		return nil
	}

	var out []VATTableEntry
	for _, named := range []struct {
		tree Tree
		kind string
	}{{b.data.Income, "income"}, {b.data.Expense, "expense"}} {
		relevant := make(map[string]bool)
		for code := range r.Percentage {
			if !named.tree.has(code) {
				continue
			}
			for c := code; c != "" && !relevant[c]; c = named.tree.Parents[c] {
				relevant[c] = true
			}
		}

		var roots []string
		for code := range relevant {
			if parent := named.tree.Parents[code]; parent == "" || !relevant[parent] {
				roots = append(roots, code)
			}
		}
		sort.Strings(roots)

		var walk func(code string, level int)
		walk = func(code string, level int) {
			value, _ := Lookup(code, r.Percentage, named.tree)
			out = append(out, VATTableEntry{ID: code, Name: named.kind + "-" + code, Level: level, Value: value})
			for _, child := range named.tree.Children[code] {
				if relevant[child] && named.tree.Parents[child] == code {
					walk(child, level+1)
				}
			}
		}
		for _, root := range roots {
			walk(root, 0)
		}
	}
	return out
}

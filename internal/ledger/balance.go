// Package ledger keeps time-ordered account balances and asset stock.
//
// Balances accept deltas at any point of history. Stock accepts fixed
// snapshots at any point but deltas only at or after the latest snapshot of
// an asset. Neither type is safe for concurrent use.
package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// BalanceEntry is one recorded change of an account balance.
type BalanceEntry struct {
	Time   time.Time `json:"time"`
	Change int64     `json:"change"`
}

// BalanceSummaryEntry describes the balance of one configured account.
type BalanceSummaryEntry struct {
	Account     string               `json:"account"`
	Address     model.AccountAddress `json:"address"`
	DebtAddress model.AccountAddress `json:"debtAddress"`
	Balance     int64                `json:"balance"`
	MayTakeLoan bool                 `json:"mayTakeLoan"`
}

// Balances tracks account balances in cents.
type Balances struct {
	logger   *slog.Logger
	warnings *common.OnceLogger
	totals   map[string]int64
	history  map[string][]BalanceEntry
	numbers  map[model.AccountAddress]string
}

// NewBalances creates an empty balance ledger.
func NewBalances(logger *slog.Logger) *Balances {
	if logger == nil {
		logger = slog.Default()
	}
	return &Balances{
		logger:   logger,
		warnings: common.NewOnceLogger(logger),
		totals:   make(map[string]int64),
		history:  make(map[string][]BalanceEntry),
		numbers:  make(map[model.AccountAddress]string),
	}
}

// Set establishes the balance of an account, replacing its history.
func (b *Balances) Set(account string, value int64) {
	b.totals[account] = value
	b.history[account] = []BalanceEntry{{Change: value}}
	b.logger.Debug("Set initial balance", "account", account, "name", b.Name(account), "balance", formatCents(value))
}

// ConfigureNames reads account.<address> bindings from an import configuration.
func (b *Balances) ConfigureNames(config map[string]any) {
	for key, value := range config {
		addr, ok := strings.CutPrefix(key, "account.")
		if !ok || value == nil {
			continue
		}
		b.numbers[model.AccountAddress(addr)] = strings.TrimSpace(fmt.Sprint(value))
	}
}

// Bind maps an address to an account number.
func (b *Balances) Bind(addr model.AccountAddress, account string) {
	b.numbers[addr] = account
}

// Number returns the account bound to addr.
func (b *Balances) Number(addr model.AccountAddress) (string, bool) {
	account, ok := b.numbers[addr]
	return account, ok
}

// Name returns the address bound to an account number.
func (b *Balances) Name(account string) string {
	var names []string
	for addr, number := range b.numbers {
		if number == account {
			names = append(names, string(addr))
		}
	}
	if len(names) == 0 {
		return "unknown.account." + account
	}
	sort.Strings(names)
	return names[0]
}

// Change records delta at time t and returns the new running total.
func (b *Balances) Change(account string, delta int64, t time.Time) int64 {
	entries := b.history[account]
	i := len(entries)
	for i > 0 && entries[i-1].Time.After(t) {
		i--
	}
	entries = append(entries, BalanceEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = BalanceEntry{Time: t, Change: delta}
	b.history[account] = entries

	b.totals[account] += delta
	b.logger.Debug("Balance change",
		"account", account,
		"name", b.Name(account),
		"delta", formatCents(delta),
		"balance", formatCents(b.totals[account]))
	return b.totals[account]
}

// Apply adds a transaction line to its account.
func (b *Balances) Apply(line model.TransactionLine, t time.Time) int64 {
	return b.Change(line.Account, line.Amount, t)
}

// Revert removes the effect of a transaction line from its account.
func (b *Balances) Revert(line model.TransactionLine, t time.Time) int64 {
	return b.Change(line.Account, -line.Amount, t)
}

func (b *Balances) resolve(key string) string {
	if account, ok := b.numbers[model.AccountAddress(key)]; ok {
		return account
	}
	if _, ok := b.totals[key]; ok {
		return key
	}
	if _, _, _, err := model.AccountAddress(key).Parts(); err == nil {
		b.warnings.Warn(fmt.Sprintf("No account number configured for address %s.", key))
	}
	return key
}

// Get returns the current balance of an account number or address.
func (b *Balances) Get(key string) int64 {
	return b.totals[b.resolve(key)]
}

// GetAt returns the balance of an account number or address at time t,
// counting every change recorded at or before t.
func (b *Balances) GetAt(key string, t time.Time) int64 {
	entries := b.history[b.resolve(key)]
	var total int64
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].Time.After(t) {
			total += entries[i].Change
		}
	}
	return total
}

// History returns the recorded changes of an account in time order.
func (b *Balances) History(account string) []BalanceEntry {
	return append([]BalanceEntry(nil), b.history[b.resolve(account)]...)
}

// Accounts lists accounts having a balance.
func (b *Balances) Accounts() []string {
	accounts := make([]string, 0, len(b.totals))
	for account := range b.totals {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

// Summary describes every configured address, sorted by address.
func (b *Balances) Summary() []BalanceSummaryEntry {
	addrs := make([]string, 0, len(b.numbers))
	for addr := range b.numbers {
		addrs = append(addrs, string(addr))
	}
	sort.Strings(addrs)

	summary := make([]BalanceSummaryEntry, 0, len(addrs))
	for _, s := range addrs {
		addr := model.AccountAddress(s)
		account := b.numbers[addr]
		summary = append(summary, BalanceSummaryEntry{
			Account:     account,
			Address:     addr,
			DebtAddress: DebtAddress(addr),
			Balance:     b.totals[account],
			MayTakeLoan: MayTakeLoan(addr),
		})
	}
	return summary
}

// Clone returns an independent copy of the ledger.
func (b *Balances) Clone() *Balances {
	out := &Balances{
		logger:   b.logger,
		warnings: b.warnings,
		totals:   make(map[string]int64, len(b.totals)),
		history:  make(map[string][]BalanceEntry, len(b.history)),
		numbers:  make(map[model.AccountAddress]string, len(b.numbers)),
	}
	for k, v := range b.totals {
		out.totals[k] = v
	}
	for k, v := range b.history {
		out.history[k] = append([]BalanceEntry(nil), v...)
	}
	for k, v := range b.numbers {
		out.numbers[k] = v
	}
	return out
}

// MayTakeLoan reports whether an account may record debts separately.
func MayTakeLoan(addr model.AccountAddress) bool {
	reason, typ, _, err := addr.Parts()
	return err == nil && reason != model.ReasonFee && typ == model.TypeCurrency
}

// DebtAddress converts an address to the matching debt address.
func DebtAddress(addr model.AccountAddress) model.AccountAddress {
	_, typ, asset, err := addr.Parts()
	if err != nil {
		return ""
	}
	return model.NewAddress(model.ReasonDebt, typ, asset)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

package ledger

import (
	"encoding/json"
	"sort"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// ApplyResultsJSON is the serialized form of ApplyResults.
type ApplyResultsJSON struct {
	Accounts   map[string]int64 `json:"accounts"`
	Created    int              `json:"created"`
	Ignored    int              `json:"ignored"`
	Duplicates int              `json:"duplicates"`
	Skipped    int              `json:"skipped"`
}

// ApplyResults counts what happened to executed transactions and the net
// change per account.
type ApplyResults struct {
	accounts   map[string]int64
	created    int
	ignored    int
	duplicates int
	skipped    int
}

// NewApplyResults creates empty results.
func NewApplyResults() *ApplyResults {
	return &ApplyResults{accounts: make(map[string]int64)}
}

// Create counts a created transaction and records its entries.
func (r *ApplyResults) Create(tx model.Transaction) {
	r.created++
	for _, entry := range tx.Entries {
		r.accounts[entry.Account] += entry.Amount
	}
}

// Ignore counts an ignored transaction.
func (r *ApplyResults) Ignore(model.Transaction) {
	r.ignored++
}

// Duplicate counts a duplicate transaction.
func (r *ApplyResults) Duplicate(model.Transaction) {
	r.duplicates++
}

// Skip counts a skipped transaction.
func (r *ApplyResults) Skip(model.Transaction) {
	r.skipped++
}

// Add merges partial results.
func (r *ApplyResults) Add(partial ApplyResultsJSON) {
	r.created += partial.Created
	r.ignored += partial.Ignored
	r.duplicates += partial.Duplicates
	r.skipped += partial.Skipped
	for account, amount := range partial.Accounts {
		r.accounts[account] += amount
	}
}

// JSON returns a snapshot of the results.
func (r *ApplyResults) JSON() ApplyResultsJSON {
	accounts := make(map[string]int64, len(r.accounts))
	for account, amount := range r.accounts {
		accounts[account] = amount
	}
	return ApplyResultsJSON{
		Accounts:   accounts,
		Created:    r.created,
		Ignored:    r.ignored,
		Duplicates: r.duplicates,
		Skipped:    r.skipped,
	}
}

// MarshalJSON implements json.Marshaler.
func (r *ApplyResults) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.JSON())
}

// Accounts lists the accounts with recorded changes.
func (r *ApplyResults) Accounts() []string {
	accounts := make([]string, 0, len(r.accounts))
	for account := range r.accounts {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	return accounts
}

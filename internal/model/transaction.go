package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionResult tells what happened to a transaction in execution.
type ExecutionResult string

// Execution results.
const (
	ResultNotDone   ExecutionResult = "not done"
	ResultCreated   ExecutionResult = "created"
	ResultDuplicate ExecutionResult = "duplicate"
	ResultIgnored   ExecutionResult = "ignored"
	ResultSkipped   ExecutionResult = "skipped"
	ResultReverted  ExecutionResult = "reverted"
)

// TransactionDescription is the classification output for one segment.
type TransactionDescription struct {
	Type      string          `json:"type"`
	Transfers []AssetTransfer `json:"transfers"`
}

// TransactionLine is one entry of a transaction. Amount is in cents.
type TransactionLine struct {
	Data        map[string]any `json:"data,omitempty"`
	Account     string         `json:"account"`
	Description string         `json:"description"`
	Amount      int64          `json:"amount"`
}

// Transaction is a balanced set of entries created from a segment.
type Transaction struct {
	Date            time.Time         `json:"date"`
	SegmentID       SegmentID         `json:"segmentId"`
	ExecutionResult ExecutionResult   `json:"executionResult,omitempty"`
	Entries         []TransactionLine `json:"entries"`
}

// Clone returns a deep copy of the transaction.
func (t Transaction) Clone() Transaction {
	entries := make([]TransactionLine, len(t.Entries))
	for i, e := range t.Entries {
		e.Data = CloneMap(e.Data)
		entries[i] = e
	}
	t.Entries = entries
	return t
}

// Total sums the entry amounts.
func (t Transaction) Total() int64 {
	var total int64
	for _, e := range t.Entries {
		total += e.Amount
	}
	return total
}

// Hash creates a fingerprint for duplicate detection.
func (t Transaction) Hash() string {
	type entry struct {
		Account     string `json:"a"`
		Description string `json:"d"`
		Amount      int64  `json:"m"`
	}
	entries := make([]entry, len(t.Entries))
	for i, e := range t.Entries {
		entries[i] = entry{Account: e.Account, Description: e.Description, Amount: e.Amount}
	}
	data, _ := json.Marshal(entries)
	sum := sha256.Sum256(append([]byte(t.Date.UTC().Format(time.RFC3339)+":"), data...))
	return fmt.Sprintf("%x", sum)
}

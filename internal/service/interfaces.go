// Package service defines the interfaces of the collaborators the import
// pipeline and the process runner depend on.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Connector links the import pipeline to the bookkeeping database.
type Connector interface {
	// AccountCandidates returns the account numbers that could serve an address.
	AccountCandidates(ctx context.Context, addr model.AccountAddress, config model.ImportConfig) ([]string, error)
	// Rate returns the value of one unit of asset in currency at time t.
	Rate(ctx context.Context, t time.Time, typ model.AssetType, asset, currency string) (float64, error)
	// ResultExists reports whether an identical transaction is already stored.
	ResultExists(ctx context.Context, processID int64, tx model.Transaction) (bool, error)
	// ApplyResult stores a transaction created by the given process.
	ApplyResult(ctx context.Context, processID int64, tx model.Transaction) (ledger.ApplyResultsJSON, error)
	// Rollback removes every transaction created by the process.
	Rollback(ctx context.Context, processID int64) error
	// InitializeBalances loads the account balances valid at time t.
	InitializeBalances(ctx context.Context, t time.Time, balances *ledger.Balances, config model.ImportConfig) error
}

// ProcessFilter defines filtering options for process queries.
type ProcessFilter struct {
	Status ProcessStatusFilter
	Limit  int
	Offset int
}

// ProcessStatusFilter limits a query to the given statuses. Empty means all.
type ProcessStatusFilter []model.ProcessStatus

// ProcessStore persists import processes and their steps.
type ProcessStore interface {
	CreateProcess(ctx context.Context, process *model.Process) error
	GetProcess(ctx context.Context, id int64) (*model.Process, error)
	UpdateProcess(ctx context.Context, process *model.Process) error
	ListProcesses(ctx context.Context, filter ProcessFilter) ([]model.Process, error)

	AddStep(ctx context.Context, step *model.ProcessStep) error
	UpdateStep(ctx context.Context, step *model.ProcessStep) error
	GetStep(ctx context.Context, processID int64, number int) (*model.ProcessStep, error)
	GetSteps(ctx context.Context, processID int64) ([]model.ProcessStep, error)
}

package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// fakeConnector keeps applied transactions in memory.
type fakeConnector struct {
	candidates  map[model.AccountAddress][]string
	rates       map[string]float64
	applied     map[int64][]model.Transaction
	hashes      map[string]bool
	rollbackErr error
	applyErr    error
	rollbacks   []int64
	failApplyAt int
	applyCalls  int
	mu          sync.Mutex
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		candidates: make(map[model.AccountAddress][]string),
		rates:      make(map[string]float64),
		applied:    make(map[int64][]model.Transaction),
		hashes:     make(map[string]bool),
	}
}

func (f *fakeConnector) AccountCandidates(_ context.Context, addr model.AccountAddress, _ model.ImportConfig) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidates[addr], nil
}

func (f *fakeConnector) Rate(_ context.Context, _ time.Time, _ model.AssetType, asset, currency string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rate, ok := f.rates[asset]
	if !ok {
		return 0, fmt.Errorf("no rate for %s in %s", asset, currency)
	}
	return rate, nil
}

func (f *fakeConnector) ResultExists(_ context.Context, _ int64, tx model.Transaction) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[tx.Hash()], nil
}

func (f *fakeConnector) ApplyResult(_ context.Context, processID int64, tx model.Transaction) (ledger.ApplyResultsJSON, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCalls++
	if f.applyErr != nil && f.applyCalls == f.failApplyAt {
		return ledger.ApplyResultsJSON{}, f.applyErr
	}
	f.applied[processID] = append(f.applied[processID], tx)
	f.hashes[tx.Hash()] = true
	results := ledger.NewApplyResults()
	results.Create(tx)
	return results.JSON(), nil
}

func (f *fakeConnector) Rollback(_ context.Context, processID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rollbackErr != nil {
		return f.rollbackErr
	}
	for _, tx := range f.applied[processID] {
		delete(f.hashes, tx.Hash())
	}
	delete(f.applied, processID)
	f.rollbacks = append(f.rollbacks, processID)
	return nil
}

func (f *fakeConnector) InitializeBalances(context.Context, time.Time, *ledger.Balances, model.ImportConfig) error {
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// allSegments returns the file and custom segments in time order.
func (s *AnalyzedState) allSegments() []model.ImportSegment {
	all := make(map[model.SegmentID]model.ImportSegment, len(s.Segments)+len(s.Custom))
	for id, segment := range s.Segments {
		all[id] = segment
	}
	for id, segment := range s.Custom {
		all[id] = segment
	}
	return model.SortSegments(all)
}

// execution stores the analyzed transactions through the connector and
// applies them to the ledgers. A failure undoes everything this attempt
// stored or applied, so the analyzed state can be executed again.
func (p *Pipeline) execution(ctx context.Context, processID int64, s *AnalyzedState, config model.ImportConfig) (*ExecutedState, error) {
	allowIdentical, _ := config.Bool(ConfigAllowIdenticalTx)
	results := ledger.NewApplyResults()

	next := &ExecutedState{
		AnalyzedState: *s,
		Executed:      make(map[model.SegmentID][]model.Transaction, len(s.Transactions)),
	}
	var applied []model.Transaction
	fail := func(id model.SegmentID, err error) (*ExecutedState, error) {
		if undoErr := p.undoExecution(ctx, processID, applied); undoErr != nil {
			err = errors.Join(err, undoErr)
		}
		return nil, fmt.Errorf("segment %s: %w", id, err)
	}

	for _, segment := range s.allSegments() {
		for _, original := range s.Transactions[segment.ID] {
			if err := ctx.Err(); err != nil {
				return fail(segment.ID, err)
			}
			tx := original.Clone()
			switch tx.ExecutionResult {
			case model.ResultSkipped:
				results.Skip(tx)
			case model.ResultIgnored:
				results.Ignore(tx)
			default:
				var exists bool
				err := common.WithRetry(ctx, func() error {
					var err error
					exists, err = p.connector.ResultExists(ctx, processID, tx)
					return err
				}, p.cfg.Retry)
				if err != nil {
					return fail(segment.ID, err)
				}
				if exists && !allowIdentical {
					tx.ExecutionResult = model.ResultDuplicate
					results.Duplicate(tx)
					break
				}

				var stored ledger.ApplyResultsJSON
				err = common.WithRetry(ctx, func() error {
					var err error
					stored, err = p.connector.ApplyResult(ctx, processID, tx)
					return err
				}, p.cfg.Retry)
				if err != nil {
					return fail(segment.ID, err)
				}
				if err := p.applyToLedgers(tx); err != nil {
					return fail(segment.ID, err)
				}
				applied = append(applied, tx)
				tx.ExecutionResult = model.ResultCreated
				results.Add(stored)
			}
			next.Executed[segment.ID] = append(next.Executed[segment.ID], tx)
		}
	}
	next.Output = results.JSON()

	p.logger.Info("Execution done", "process", processID,
		"created", next.Output.Created,
		"duplicates", next.Output.Duplicates,
		"ignored", next.Output.Ignored,
		"skipped", next.Output.Skipped)
	return next, nil
}

// undoExecution reverts the ledger effects of applied, latest first, and
// removes everything the process stored.
func (p *Pipeline) undoExecution(ctx context.Context, processID int64, applied []model.Transaction) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		if err := p.revertFromLedgers(applied[i]); err != nil {
			errs = append(errs, err)
		}
	}
	// The connector is cleaned up even when ctx is already cancelled.
	cleanup := context.WithoutCancel(ctx)
	err := common.WithRetry(cleanup, func() error {
		return p.connector.Rollback(cleanup, processID)
	}, p.cfg.Retry)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to remove stored transactions: %w", err))
	}
	p.logger.Warn("Execution undone", "process", processID, "transactions", len(applied))
	return errors.Join(errs...)
}

// applyToLedgers applies every entry of tx or, on failure, none of them.
func (p *Pipeline) applyToLedgers(tx model.Transaction) error {
	for i, entry := range tx.Entries {
		p.balances.Apply(entry, tx.Date)
		if err := p.stock.ApplyEntry(tx.Date, entry.Data); err != nil {
			p.balances.Revert(entry, tx.Date)
			done := tx
			done.Entries = tx.Entries[:i]
			if undoErr := p.revertFromLedgers(done); undoErr != nil {
				return errors.Join(err, undoErr)
			}
			return err
		}
	}
	return nil
}

// rollback removes the batch through the connector and reverts its effect on
// the ledgers, latest transaction first.
func (p *Pipeline) rollback(ctx context.Context, processID int64, s *ExecutedState) (*RolledBackState, error) {
	err := common.WithRetry(ctx, func() error {
		return p.connector.Rollback(ctx, processID)
	}, p.cfg.Retry)
	if err != nil {
		return nil, common.NewUserError("Rollback failed.", err)
	}

	next := &RolledBackState{
		ExecutedState: *s,
		Reverted:      make(map[model.SegmentID][]model.Transaction, len(s.Executed)),
	}
	segments := s.allSegments()
	for i := len(segments) - 1; i >= 0; i-- {
		id := segments[i].ID
		executed := s.Executed[id]
		reverted := make([]model.Transaction, len(executed))
		for j := len(executed) - 1; j >= 0; j-- {
			tx := executed[j].Clone()
			if tx.ExecutionResult == model.ResultCreated {
				if err := p.revertFromLedgers(tx); err != nil {
					return nil, fmt.Errorf("segment %s: %w", id, err)
				}
				tx.ExecutionResult = model.ResultReverted
			}
			reverted[j] = tx
		}
		if len(reverted) > 0 {
			next.Reverted[id] = reverted
		}
	}

	p.logger.Info("Rollback done", "process", processID, "segments", len(next.Reverted))
	return next, nil
}

// revertFromLedgers undoes applyToLedgers. Stock deltas are appended after
// the latest snapshot, so totals return to their earlier values while the
// history keeps both movements.
func (p *Pipeline) revertFromLedgers(tx model.Transaction) error {
	for i := len(tx.Entries) - 1; i >= 0; i-- {
		entry := tx.Entries[i]
		p.balances.Revert(entry, tx.Date)
		change, typ, ok := ledger.EntryStockChange(entry.Data)
		if !ok {
			continue
		}
		for _, asset := range ledger.ChangedAssets(change) {
			v := change.Change[asset]
			at := tx.Date
			if last, ok := p.stock.Last(typ, asset); ok && last.Time.After(at) {
				at = last.Time
			}
			if err := p.stock.Change(at, typ, asset, -v.Amount, -v.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary counts transactions of an executed import by result.
func (s *ExecutedState) Summary() map[model.ExecutionResult]int {
	out := make(map[model.ExecutionResult]int)
	for _, txs := range s.Executed {
		for _, tx := range txs {
			out[tx.ExecutionResult]++
		}
	}
	return out
}

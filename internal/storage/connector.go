package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

var (
	_ service.Connector    = (*SQLiteStorage)(nil)
	_ service.ProcessStore = (*SQLiteStorage)(nil)
)

// AccountCandidates returns the numbers of the accounts matching addr.
func (s *SQLiteStorage) AccountCandidates(ctx context.Context, addr model.AccountAddress, config model.ImportConfig) ([]string, error) {
	found, err := s.FindAccounts(ctx, addr, config)
	if err != nil {
		return nil, err
	}
	numbers := make([]string, len(found))
	for i, a := range found {
		numbers[i] = a.Number
	}
	return numbers, nil
}

// SetRate stores the value of one unit of asset in currency on a date.
func (s *SQLiteStorage) SetRate(ctx context.Context, date time.Time, typ model.AssetType, asset, currency string, rate float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rate <= 0 {
		return fmt.Errorf("%w: rate %v for %s", common.ErrInvalidConfig, rate, asset)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rates (date, asset_type, asset, currency, rate) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(asset_type, asset, currency, date) DO UPDATE SET rate = excluded.rate
	`, date.UTC().Format(time.DateOnly), string(typ), asset, currency, rate)
	if err != nil {
		return fmt.Errorf("failed to save rate: %w", err)
	}
	return nil
}

// Rate returns the latest stored rate on or before t.
func (s *SQLiteStorage) Rate(ctx context.Context, t time.Time, typ model.AssetType, asset, currency string) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if asset == currency {
		return 1, nil
	}
	var rate float64
	err := s.db.QueryRowContext(ctx, `
		SELECT rate FROM rates
		WHERE asset_type = ? AND asset = ? AND currency = ? AND date <= ?
		ORDER BY date DESC LIMIT 1
	`, string(typ), asset, currency, t.UTC().Format(time.DateOnly)).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("rate of %s %s in %s at %s: %w", typ, asset, currency, t.Format(time.DateOnly), common.ErrNotAvailable)
	}
	if err != nil {
		return 0, busy(fmt.Errorf("failed to query rate: %w", err))
	}
	return rate, nil
}

// ResultExists reports whether a transaction with the same date and entries
// is stored already.
func (s *SQLiteStorage) ResultExists(ctx context.Context, _ int64, tx model.Transaction) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE hash = ?`, tx.Hash()).Scan(&n); err != nil {
		return false, busy(fmt.Errorf("failed to look up transaction: %w", err))
	}
	return n > 0, nil
}

// ApplyResult stores a transaction with its entries.
func (s *SQLiteStorage) ApplyResult(ctx context.Context, processID int64, tx model.Transaction) (ledger.ApplyResultsJSON, error) {
	if err := validateContext(ctx); err != nil {
		return ledger.ApplyResultsJSON{}, err
	}
	if err := validateTransaction(tx); err != nil {
		return ledger.ApplyResultsJSON{}, err
	}

	err := s.withTx(ctx, func(dbtx *sql.Tx) error {
		res, err := dbtx.ExecContext(ctx, `
			INSERT INTO transactions (process_id, segment_id, hash, date) VALUES (?, ?, ?, ?)
		`, processID, string(tx.SegmentID), tx.Hash(), tx.Date.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get transaction id: %w", err)
		}

		stmt, err := dbtx.PrepareContext(ctx, `
			INSERT INTO entries (transaction_id, account_number, amount, description, data)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, entry := range tx.Entries {
			data, err := encodeData(entry.Data)
			if err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
			if _, err := stmt.ExecContext(ctx, id, entry.Account, entry.Amount, entry.Description, data); err != nil {
				return fmt.Errorf("failed to insert entry %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return ledger.ApplyResultsJSON{}, err
	}

	results := ledger.NewApplyResults()
	results.Create(tx)
	return results.JSON(), nil
}

// Rollback deletes every transaction stored by the process.
func (s *SQLiteStorage) Rollback(ctx context.Context, processID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM entries WHERE transaction_id IN (SELECT id FROM transactions WHERE process_id = ?)
		`, processID); err != nil {
			return fmt.Errorf("failed to delete entries: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE process_id = ?`, processID)
		if err != nil {
			return fmt.Errorf("failed to delete transactions: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Removed process transactions", "process", processID, "transactions", removed)
	return nil
}

// InitializeBalances sets every account balance to the sum of the entries
// dated before t and binds the configured account names.
func (s *SQLiteStorage) InitializeBalances(ctx context.Context, t time.Time, balances *ledger.Balances, config model.ImportConfig) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if balances == nil {
		return fmt.Errorf("%w: balances", ErrNilParameter)
	}
	balances.ConfigureNames(config)

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.account_number, SUM(e.amount)
		FROM entries e JOIN transactions t ON t.id = e.transaction_id
		WHERE t.date < ?
		GROUP BY e.account_number
		ORDER BY e.account_number
	`, t.UTC())
	if err != nil {
		return fmt.Errorf("failed to query balances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			account string
			total   int64
		)
		if err := rows.Scan(&account, &total); err != nil {
			return fmt.Errorf("failed to scan balance: %w", err)
		}
		balances.Set(account, total)
	}
	return rows.Err()
}

// Balance returns the sum of all stored entries of an account.
func (s *SQLiteStorage) Balance(ctx context.Context, account string) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(amount) FROM entries WHERE account_number = ?`, account).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to query balance of %s: %w", account, err)
	}
	return total.Int64, nil
}

// LoadStock replays the stock deltas of every stored entry in date order.
func (s *SQLiteStorage) LoadStock(ctx context.Context, stock *ledger.Stock) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if stock == nil {
		return fmt.Errorf("%w: stock", ErrNilParameter)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.date, e.data
		FROM transactions t JOIN entries e ON e.transaction_id = t.id
		WHERE e.data LIKE '%"stock"%'
		ORDER BY t.date, t.id, e.id
	`)
	if err != nil {
		return fmt.Errorf("failed to query stock entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			date time.Time
			raw  string
			data map[string]any
		)
		if err := rows.Scan(&date, &raw); err != nil {
			return fmt.Errorf("failed to scan stock entry: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return fmt.Errorf("failed to decode entry data: %w", err)
		}
		if err := stock.ApplyEntry(date, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Transactions returns the stored transactions of a process in date order.
func (s *SQLiteStorage) Transactions(ctx context.Context, processID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.segment_id, t.date, e.account_number, e.amount, e.description, e.data
		FROM transactions t JOIN entries e ON e.transaction_id = t.id
		WHERE t.process_id = ?
		ORDER BY t.date, t.id, e.id
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		out    []model.Transaction
		lastID int64 = -1
	)
	for rows.Next() {
		var (
			id      int64
			segment sql.NullString
			date    time.Time
			entry   model.TransactionLine
			data    sql.NullString
		)
		if err := rows.Scan(&id, &segment, &date, &entry.Account, &entry.Amount, &entry.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if data.Valid && data.String != "{}" {
			if err := json.Unmarshal([]byte(data.String), &entry.Data); err != nil {
				return nil, fmt.Errorf("transaction %d: corrupt entry data: %w", id, err)
			}
		}
		if id != lastID {
			out = append(out, model.Transaction{
				Date:            date,
				SegmentID:       model.SegmentID(segment.String),
				ExecutionResult: model.ResultCreated,
			})
			lastID = id
		}
		last := &out[len(out)-1]
		last.Entries = append(last.Entries, entry)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/spice-ledger/internal/accounts"
	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// SaveAccount inserts or replaces an account of the chart of accounts.
func (s *SQLiteStorage) SaveAccount(ctx context.Context, account *model.Account) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAccount(account); err != nil {
		return err
	}
	data, err := encodeData(account.Data)
	if err != nil {
		return fmt.Errorf("account %s: %w", account.Number, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (number, name, type, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(number) DO UPDATE SET name = excluded.name, type = excluded.type, data = excluded.data
	`, account.Number, account.Name, account.Type, data)
	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", account.Number, err)
	}
	return nil
}

// GetAccount loads one account by number.
func (s *SQLiteStorage) GetAccount(ctx context.Context, number string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT number, name, type, data FROM accounts WHERE number = ?`, number)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", number, common.ErrNotFound)
	}
	return a, err
}

// ListAccounts returns all accounts ordered by number.
func (s *SQLiteStorage) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx, "")
}

// FindAccounts returns the accounts matching an address. Addresses that
// never map to an account give an empty result.
func (s *SQLiteStorage) FindAccounts(ctx context.Context, addr model.AccountAddress, config model.ImportConfig) ([]model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	where, err := accounts.Address2SQL(addr, s.lookupOptions(config), s.knowledge)
	if err != nil {
		return nil, err
	}
	if where == "" {
		return nil, nil
	}
	return s.queryAccounts(ctx, where)
}

func (s *SQLiteStorage) lookupOptions(config model.ImportConfig) accounts.Options {
	plugin := s.plugin
	if p := config.String("plugin"); p != "" {
		plugin = p
	}
	return accounts.Options{
		DefaultCurrency: config.Currency(),
		Plugin:          plugin,
		Strict:          s.strict,
		Warnings:        s.warnings,
	}
}

// queryAccounts runs a lookup with a condition built by accounts.Address2SQL.
// Values in the condition are quoted there.
func (s *SQLiteStorage) queryAccounts(ctx context.Context, where string) ([]model.Account, error) {
	query := `SELECT number, name, type, data FROM accounts`
	if where != "" {
		// #nosec G202 - condition values are escaped by Address2SQL
		query += " WHERE " + where
	}
	query += " ORDER BY number"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAccount(row scanner) (*model.Account, error) {
	var (
		a    model.Account
		data string
	)
	if err := row.Scan(&a.Number, &a.Name, &a.Type, &data); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &a.Data); err != nil {
		return nil, fmt.Errorf("account %s: corrupt data: %w", a.Number, err)
	}
	return &a, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode data: %w", err)
	}
	return string(b), nil
}

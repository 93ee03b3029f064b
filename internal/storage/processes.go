package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// CreateProcess inserts a process and sets its ID.
func (s *SQLiteStorage) CreateProcess(ctx context.Context, p *model.Process) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProcess(p); err != nil {
		return err
	}

	config, files, err := encodeProcess(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if p.Created.IsZero() {
		p.Created = now
	}
	p.Updated = now
	if p.Status == "" {
		p.Status = model.StatusIncomplete
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processes (name, status, error, config, files, current_step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, string(p.Status), nullString(p.Error), config, files, p.CurrentStep, p.Created, p.Updated)
	if err != nil {
		return fmt.Errorf("failed to insert process: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get process id: %w", err)
	}
	p.ID = id
	return nil
}

// GetProcess loads a process without its steps.
func (s *SQLiteStorage) GetProcess(ctx context.Context, id int64) (*model.Process, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, error, config, files, current_step, created_at, updated_at
		FROM processes WHERE id = ?
	`, id)
	p, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("process %d: %w", id, common.ErrNotFound)
	}
	return p, err
}

// UpdateProcess stores the status, error, configuration and current step.
func (s *SQLiteStorage) UpdateProcess(ctx context.Context, p *model.Process) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateProcess(p); err != nil {
		return err
	}
	config, files, err := encodeProcess(p)
	if err != nil {
		return err
	}
	p.Updated = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE processes
		SET name = ?, status = ?, error = ?, config = ?, files = ?, current_step = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, string(p.Status), nullString(p.Error), config, files, p.CurrentStep, p.Updated, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update process %d: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("process %d: %w", p.ID, common.ErrNotFound)
	}
	return nil
}

// ListProcesses returns processes newest first. Files are not loaded.
func (s *SQLiteStorage) ListProcesses(ctx context.Context, filter service.ProcessFilter) ([]model.Process, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, name, status, error, config, '[]', current_step, created_at, updated_at FROM processes`
	var args []any
	if len(filter.Status) > 0 {
		marks := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			marks[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(marks, ", ") + ")"
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// AddStep inserts a new step of a process.
func (s *SQLiteStorage) AddStep(ctx context.Context, step *model.ProcessStep) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStep(step); err != nil {
		return err
	}
	if step.Started.IsZero() {
		step.Started = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_steps (process_id, number, state, action, directions, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, step.ProcessID, step.Number, string(step.State), nullJSON(step.Action), nullJSON(step.Directions),
		step.Started, step.Finished)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("step %d of process %d: %w", step.Number, step.ProcessID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

// UpdateStep stores the action, directions and finish time of a step.
func (s *SQLiteStorage) UpdateStep(ctx context.Context, step *model.ProcessStep) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateStep(step); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_steps SET state = ?, action = ?, directions = ?, finished_at = ?
		WHERE process_id = ? AND number = ?
	`, string(step.State), nullJSON(step.Action), nullJSON(step.Directions), step.Finished,
		step.ProcessID, step.Number)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("step %d of process %d: %w", step.Number, step.ProcessID, common.ErrNotFound)
	}
	return nil
}

// GetStep loads one step.
func (s *SQLiteStorage) GetStep(ctx context.Context, processID int64, number int) (*model.ProcessStep, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT process_id, number, state, action, directions, started_at, finished_at
		FROM process_steps WHERE process_id = ? AND number = ?
	`, processID, number)
	step, err := scanStep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("step %d of process %d: %w", number, processID, common.ErrNotFound)
	}
	return step, err
}

// GetSteps loads all steps of a process in order.
func (s *SQLiteStorage) GetSteps(ctx context.Context, processID int64) ([]model.ProcessStep, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT process_id, number, state, action, directions, started_at, finished_at
		FROM process_steps WHERE process_id = ? ORDER BY number
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ProcessStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *step)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProcess(row scanner) (*model.Process, error) {
	var (
		p            model.Process
		status       string
		errText      sql.NullString
		config       string
		files        string
		created, upd time.Time
	)
	if err := row.Scan(&p.ID, &p.Name, &status, &errText, &config, &files, &p.CurrentStep, &created, &upd); err != nil {
		return nil, err
	}
	p.Status = model.ProcessStatus(status)
	p.Error = errText.String
	p.Created, p.Updated = created, upd
	if err := json.Unmarshal([]byte(config), &p.Config); err != nil {
		return nil, fmt.Errorf("process %d: corrupt config: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(files), &p.Files); err != nil {
		return nil, fmt.Errorf("process %d: corrupt files: %w", p.ID, err)
	}
	return &p, nil
}

func scanStep(row scanner) (*model.ProcessStep, error) {
	var (
		step               model.ProcessStep
		state              string
		action, directions sql.NullString
		finished           sql.NullTime
	)
	if err := row.Scan(&step.ProcessID, &step.Number, &state, &action, &directions, &step.Started, &finished); err != nil {
		return nil, err
	}
	step.State = json.RawMessage(state)
	if action.Valid {
		step.Action = json.RawMessage(action.String)
	}
	if directions.Valid {
		step.Directions = json.RawMessage(directions.String)
	}
	if finished.Valid {
		t := finished.Time
		step.Finished = &t
	}
	return &step, nil
}

func encodeProcess(p *model.Process) (config, files string, err error) {
	cfg := p.Config
	if cfg == nil {
		cfg = model.ImportConfig{}
	}
	c, err := json.Marshal(cfg)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode config: %w", err)
	}
	fs := p.Files
	if fs == nil {
		fs = []model.ImportFile{}
	}
	f, err := json.Marshal(fs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode files: %w", err)
	}
	return string(c), string(f), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(data json.RawMessage) sql.NullString {
	return sql.NullString{String: string(data), Valid: len(data) > 0}
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidProcess     = errors.New("invalid process")
	ErrInvalidStep        = errors.New("invalid process step")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateProcess(p *model.Process) error {
	if p == nil {
		return fmt.Errorf("%w: process", ErrNilParameter)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProcess)
	}
	switch p.Status {
	case "", model.StatusIncomplete, model.StatusWaiting, model.StatusSucceeded,
		model.StatusFailed, model.StatusCrashed, model.StatusRolledBack:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidProcess, p.Status)
	}
	return nil
}

func validateStep(step *model.ProcessStep) error {
	if step == nil {
		return fmt.Errorf("%w: step", ErrNilParameter)
	}
	if step.ProcessID <= 0 {
		return fmt.Errorf("%w: process id is required", ErrInvalidStep)
	}
	if step.Number < 0 {
		return fmt.Errorf("%w: negative step number %d", ErrInvalidStep, step.Number)
	}
	if len(step.State) == 0 {
		return fmt.Errorf("%w: state is required", ErrInvalidStep)
	}
	return nil
}

func validateAccount(a *model.Account) error {
	if a == nil {
		return fmt.Errorf("%w: account", ErrNilParameter)
	}
	if strings.TrimSpace(a.Number) == "" {
		return fmt.Errorf("%w: number is required", ErrInvalidAccount)
	}
	if strings.TrimSpace(a.Type) == "" {
		return fmt.Errorf("%w: type is required for %s", ErrInvalidAccount, a.Number)
	}
	return nil
}

// validateTransaction requires at least one entry, an account on every entry
// and a zero total.
func validateTransaction(tx model.Transaction) error {
	if len(tx.Entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidTransaction)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	for i, e := range tx.Entries {
		if strings.TrimSpace(e.Account) == "" {
			return fmt.Errorf("%w: entry %d has no account", ErrInvalidTransaction, i)
		}
	}
	if total := tx.Total(); total != 0 {
		return fmt.Errorf("%w: entries total %d", ErrInvalidTransaction, total)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/spice-ledger/internal/model"
)

func TestValidateContext(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, validateContext(context.Background()))
	assert.NoError(t, validateContext(canceled), "canceled context is still valid")
	//nolint:staticcheck // nil context on purpose
	assert.ErrorIs(t, validateContext(nil), ErrNilContext)
}

func TestValidateProcess(t *testing.T) {
	tests := []struct {
		process *model.Process
		wantErr error
		name    string
	}{
		{name: "valid", process: &model.Process{Name: "bank.csv", Status: model.StatusWaiting}},
		{name: "default status", process: &model.Process{Name: "bank.csv"}},
		{name: "nil", process: nil, wantErr: ErrNilParameter},
		{name: "no name", process: &model.Process{Name: " "}, wantErr: ErrInvalidProcess},
		{name: "unknown status", process: &model.Process{Name: "x", Status: "DONE"}, wantErr: ErrInvalidProcess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateProcess(tt.process)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateStep(t *testing.T) {
	state := json.RawMessage(`{"stage":"initial"}`)
	tests := []struct {
		step    *model.ProcessStep
		wantErr error
		name    string
	}{
		{name: "valid", step: &model.ProcessStep{ProcessID: 1, State: state}},
		{name: "nil", step: nil, wantErr: ErrNilParameter},
		{name: "no process", step: &model.ProcessStep{State: state}, wantErr: ErrInvalidStep},
		{name: "negative number", step: &model.ProcessStep{ProcessID: 1, Number: -1, State: state}, wantErr: ErrInvalidStep},
		{name: "no state", step: &model.ProcessStep{ProcessID: 1}, wantErr: ErrInvalidStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStep(tt.step)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateTransaction(t *testing.T) {
	date := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	balanced := []model.TransactionLine{{Account: "1910", Amount: 100}, {Account: "3000", Amount: -100}}

	tests := []struct {
		name    string
		tx      model.Transaction
		wantErr bool
	}{
		{name: "balanced", tx: model.Transaction{Date: date, Entries: balanced}},
		{name: "no entries", tx: model.Transaction{Date: date}, wantErr: true},
		{name: "no date", tx: model.Transaction{Entries: balanced}, wantErr: true},
		{name: "missing account", tx: model.Transaction{Date: date, Entries: []model.TransactionLine{{Amount: 0}}}, wantErr: true},
		{name: "unbalanced", tx: model.Transaction{Date: date, Entries: balanced[:1]}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTransaction(tt.tx)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransaction)
				return
			}
			assert.NoError(t, err)
		})
	}
}

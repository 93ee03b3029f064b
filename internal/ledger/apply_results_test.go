package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/model"
)

func TestApplyResults(t *testing.T) {
	r := NewApplyResults()
	tx := model.Transaction{Entries: []model.TransactionLine{
		{Account: "1910", Amount: -1000},
		{Account: "4000", Amount: 1000},
	}}

	r.Create(tx)
	r.Create(tx)
	r.Ignore(tx)
	r.Duplicate(tx)
	r.Skip(tx)
	r.Add(ApplyResultsJSON{Created: 1, Accounts: map[string]int64{"1910": 500, "2000": 7}})

	assert.Equal(t, ApplyResultsJSON{
		Accounts:   map[string]int64{"1910": -1500, "4000": 2000, "2000": 7},
		Created:    3,
		Ignored:    1,
		Duplicates: 1,
		Skipped:    1,
	}, r.JSON())
	assert.Equal(t, []string{"1910", "2000", "4000"}, r.Accounts())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"created":3,"ignored":1,"duplicates":1,"skipped":1,"accounts":{"1910":-1500,"2000":7,"4000":2000}}`,
		string(data))
}

func TestApplyResults_JSONIsSnapshot(t *testing.T) {
	r := NewApplyResults()
	r.Create(model.Transaction{Entries: []model.TransactionLine{{Account: "1910", Amount: 1}}})

	snapshot := r.JSON()
	snapshot.Accounts["1910"] = 99
	assert.Equal(t, int64(1), r.JSON().Accounts["1910"])
}

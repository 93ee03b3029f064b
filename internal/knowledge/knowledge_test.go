package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `{
  "expense": {
    "root": "EXPENSE",
    "children": {
      "EXPENSE": ["EQUIPMENT", "TRAVEL", "ADMIN"],
      "EQUIPMENT": ["MACHINERY", "FURNITURE", "COMPUTING"],
      "COMPUTING": ["HARDWARE"],
      "HARDWARE": ["COMPUTER", "COMPUTER_ACCESSORIES"],
      "COMPUTER": ["DESKTOP", "LAPTOP"],
      "COMPUTER_ACCESSORIES": ["PRINTER"],
      "TRAVEL": ["TICKET"],
      "ADMIN": ["ADMIN_OTHER"],
      "ADMIN_OTHER": ["BOOK"]
    },
    "parents": {
      "EXPENSE": null,
      "EQUIPMENT": "EXPENSE",
      "MACHINERY": "EQUIPMENT",
      "FURNITURE": "EQUIPMENT",
      "COMPUTING": "EQUIPMENT",
      "HARDWARE": "COMPUTING",
      "COMPUTER": "HARDWARE",
      "DESKTOP": "COMPUTER",
      "LAPTOP": "COMPUTER",
      "COMPUTER_ACCESSORIES": "HARDWARE",
      "PRINTER": "COMPUTER_ACCESSORIES",
      "TRAVEL": "EXPENSE",
      "TICKET": "TRAVEL",
      "ADMIN": "EXPENSE",
      "ADMIN_OTHER": "ADMIN",
      "BOOK": "ADMIN_OTHER"
    }
  },
  "income": {
    "root": "INCOME",
    "children": {"INCOME": ["INVEST", "SALES"]},
    "parents": {"INCOME": null, "INVEST": "INCOME", "SALES": "INCOME"}
  },
  "assetCodes": {
    "root": "ASSETS",
    "children": {
      "ASSETS": ["CURRENT_ASSETS"],
      "CURRENT_ASSETS": ["CASH"],
      "CASH": ["CASH_IN_HAND", "CASH_AT_BANK", "CASH_AT_STOCK_BROKER", "CASH_AT_CRYPTO_BROKER", "CASH_AT_P2P"]
    },
    "parents": {
      "ASSETS": null,
      "CURRENT_ASSETS": "ASSETS",
      "CASH": "CURRENT_ASSETS",
      "CASH_IN_HAND": "CASH",
      "CASH_AT_BANK": "CASH",
      "CASH_AT_STOCK_BROKER": "CASH",
      "CASH_AT_CRYPTO_BROKER": "CASH",
      "CASH_AT_P2P": "CASH"
    }
  },
  "taxTypes": [],
  "vat": [
    {"from": "2013-01-01", "to": null, "percentage": {"INCOME": 24, "INVEST": 0, "EXPENSE": 24, "BOOK": 10, "PRINTER": 24}}
  ]
}`

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func loadFixture(t *testing.T) *Base {
	t.Helper()
	base, err := Load(strings.NewReader(fixture))
	require.NoError(t, err)
	return base
}

func TestBase_IncomeAndExpense(t *testing.T) {
	base := loadFixture(t)

	assert.True(t, base.IsIncome("SALES"))
	assert.False(t, base.IsIncome("BOOK"))
	assert.False(t, base.IsExpense("SALES"))
	assert.True(t, base.IsExpense("BOOK"))
}

func TestBase_VAT(t *testing.T) {
	base := loadFixture(t)

	tests := []struct {
		code   string
		date   string
		want   float64
		wantOK bool
	}{
		{code: "INCOME", date: "2010-01-01"},
		{code: "ZXCVBN", date: "2013-01-01"},
		{code: "INCOME", date: "2013-01-01", want: 24, wantOK: true},
		{code: "INVEST", date: "2020-01-01", want: 0, wantOK: true},
		{code: "EXPENSE", date: "2010-01-01"},
		{code: "EXPENSE", date: "2013-01-01", want: 24, wantOK: true},
		{code: "COMPUTER", date: "2013-01-01", want: 24, wantOK: true},
		{code: "BOOK", date: "2021-06-30", want: 10, wantOK: true},
		{code: "BOOK2", date: "2021-06-30", want: 10, wantOK: true},
		{code: "", date: "2021-06-30"},
	}

	for _, tt := range tests {
		t.Run(tt.code+"@"+tt.date, func(t *testing.T) {
			got, ok := base.VAT(tt.code, day(tt.date))
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBase_Children(t *testing.T) {
	base := loadFixture(t)

	assert.Equal(t, []string{
		"CURRENT_ASSETS", "CASH",
		"CASH_IN_HAND", "CASH_AT_BANK", "CASH_AT_STOCK_BROKER", "CASH_AT_CRYPTO_BROKER", "CASH_AT_P2P",
	}, base.Children("ASSETS"))
	assert.Equal(t, []string{
		"CASH_IN_HAND", "CASH_AT_BANK", "CASH_AT_STOCK_BROKER", "CASH_AT_CRYPTO_BROKER", "CASH_AT_P2P",
	}, base.Children("CASH"))
	assert.Empty(t, base.Children("CASH_IN_HAND"))
	assert.Equal(t, []string{"TICKET"}, base.Children("TRAVEL"))
	assert.Empty(t, base.Children("UNKNOWN"))
}

func TestBase_VATTable(t *testing.T) {
	base := loadFixture(t)

	assert.Equal(t, []VATTableEntry{
		{ID: "INCOME", Name: "income-INCOME", Level: 0, Value: 24},
		{ID: "INVEST", Name: "income-INVEST", Level: 1, Value: 0},
		{ID: "EXPENSE", Name: "expense-EXPENSE", Level: 0, Value: 24},
		{ID: "EQUIPMENT", Name: "expense-EQUIPMENT", Level: 1, Value: 24},
		{ID: "COMPUTING", Name: "expense-COMPUTING", Level: 2, Value: 24},
		{ID: "HARDWARE", Name: "expense-HARDWARE", Level: 3, Value: 24},
		{ID: "COMPUTER_ACCESSORIES", Name: "expense-COMPUTER_ACCESSORIES", Level: 4, Value: 24},
		{ID: "PRINTER", Name: "expense-PRINTER", Level: 5, Value: 24},
		{ID: "ADMIN", Name: "expense-ADMIN", Level: 1, Value: 24},
		{ID: "ADMIN_OTHER", Name: "expense-ADMIN_OTHER", Level: 2, Value: 24},
		{ID: "BOOK", Name: "expense-BOOK", Level: 3, Value: 10},
	}, base.VATTable(day("2020-01-01")))

	assert.Empty(t, base.VATTable(day("2000-01-01")))
}

func TestBase_Immutable(t *testing.T) {
	data := Data{
		Income: Tree{Root: "INCOME", Parents: map[string]string{"INCOME": ""}},
		VAT:    []VATRange{{From: "2000-01-01", Percentage: map[string]float64{"INCOME": 24}}},
	}
	base := New(data)

	data.Income.Parents["SALES"] = "INCOME"
	data.VAT[0].Percentage["INCOME"] = 10

	assert.False(t, base.IsIncome("SALES"))
	got, ok := base.VAT("INCOME", day("2020-01-01"))
	require.True(t, ok)
	assert.InDelta(t, 24.0, got, 1e-9)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	base, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 16, base.Counts()["expense"])

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

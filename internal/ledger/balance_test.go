package ledger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/spice-ledger/internal/model"
)

func at(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, n, 0, time.UTC)
}

func TestBalances_OutOfOrderChanges(t *testing.T) {
	b := NewBalances(nil)

	assert.Equal(t, int64(500), b.Change("1910", 500, at(10)))
	assert.Equal(t, int64(600), b.Change("1910", 100, at(5)))

	assert.Equal(t, int64(600), b.Get("1910"))
	assert.Equal(t, int64(100), b.GetAt("1910", at(7)))
	assert.Equal(t, int64(600), b.GetAt("1910", at(10)))
	assert.Equal(t, int64(0), b.GetAt("1910", at(1)))

	history := b.History("1910")
	assert.Equal(t, []BalanceEntry{{Time: at(5), Change: 100}, {Time: at(10), Change: 500}}, history)
}

func TestBalances_Set(t *testing.T) {
	b := NewBalances(nil)
	b.Change("1910", 100, at(5))
	b.Set("1910", 1000)
	b.Change("1910", -250, at(8))

	assert.Equal(t, int64(750), b.Get("1910"))
	assert.Equal(t, int64(1000), b.GetAt("1910", at(7)))
	assert.Len(t, b.History("1910"), 2)
}

func TestBalances_ApplyRevert(t *testing.T) {
	b := NewBalances(nil)
	line := model.TransactionLine{Account: "1910", Amount: 1250}

	assert.Equal(t, int64(1250), b.Apply(line, at(1)))
	assert.Equal(t, int64(0), b.Revert(line, at(2)))
	assert.Equal(t, int64(1250), b.GetAt("1910", at(1)))
}

func TestBalances_AddressLookup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	b := NewBalances(logger)
	b.ConfigureNames(map[string]any{
		"account.deposit.currency.EUR": "1910",
		"account.fee.currency.EUR":     1920,
		"currency":                     "EUR",
	})
	b.Change("1910", 300, at(1))

	assert.Equal(t, int64(300), b.Get("deposit.currency.EUR"))
	assert.Equal(t, "deposit.currency.EUR", b.Name("1910"))
	assert.Equal(t, "unknown.account.9999", b.Name("9999"))

	assert.Equal(t, int64(0), b.Get("withdrawal.currency.EUR"))
	assert.Equal(t, int64(0), b.GetAt("withdrawal.currency.EUR", at(1)))
	assert.Equal(t, 1, strings.Count(buf.String(), "No account number configured for address withdrawal.currency.EUR."))
}

func TestBalances_Summary(t *testing.T) {
	b := NewBalances(nil)
	b.ConfigureNames(map[string]any{
		"account.fee.currency.EUR":     "1920",
		"account.deposit.currency.EUR": "1910",
		"account.trade.stock.*":        "1543",
	})
	b.Set("1910", 100)

	assert.Equal(t, []BalanceSummaryEntry{
		{Account: "1910", Address: "deposit.currency.EUR", DebtAddress: "debt.currency.EUR", Balance: 100, MayTakeLoan: true},
		{Account: "1920", Address: "fee.currency.EUR", DebtAddress: "debt.currency.EUR", Balance: 0, MayTakeLoan: false},
		{Account: "1543", Address: "trade.stock.*", DebtAddress: "debt.stock.*", Balance: 0, MayTakeLoan: false},
	}, b.Summary())
}

func TestBalances_Clone(t *testing.T) {
	b := NewBalances(nil)
	b.Change("1910", 100, at(1))

	c := b.Clone()
	c.Change("1910", 50, at(2))

	assert.Equal(t, int64(100), b.Get("1910"))
	assert.Equal(t, int64(150), c.Get("1910"))
	assert.Len(t, b.History("1910"), 1)
}

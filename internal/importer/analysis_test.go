package importer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func brokerFile() model.ImportFile {
	return model.ImportFile{
		Name: "broker.json",
		Type: "application/json",
		Lines: []model.TextFileLine{
			{Line: 0, Text: "buy", Columns: map[string]string{"date": "2023-02-01", "type": "buy", "asset": "ACME", "shares": "10", "total": "-1000"}},
			{Line: 1, Text: "sell", Columns: map[string]string{"date": "2023-03-01", "type": "sell", "asset": "ACME", "shares": "-4", "total": "600"}},
		},
	}
}

func brokerRules() []any {
	return []any{
		map[string]any{
			"name":   "Trade",
			"filter": `type == "buy" || type == "sell"`,
			"result": []any{
				map[string]any{"reason": "'trade'", "type": "'currency'", "asset": "'EUR'", "amount": "num(total)"},
				map[string]any{"reason": "'trade'", "type": "'stock'", "asset": "asset", "amount": "num(shares)"},
			},
		},
	}
}

func brokerConfig() model.ImportConfig {
	return model.ImportConfig{
		"currency":                   "EUR",
		"rules":                      brokerRules(),
		"account.trade.currency.EUR": "1920",
		"account.trade.stock.*":      "1550",
	}
}

func customConfig() Config {
	cfg := DefaultConfig()
	cfg.Parser = ParserCustom
	cfg.Exchange = "Broker"
	return cfg
}

// advance runs immediate directions until the import stops.
func advance(t *testing.T, p *Pipeline, state State, config model.ImportConfig) (State, model.ImportConfig, Directions) {
	t.Helper()
	ctx := context.Background()
	for {
		dirs, err := p.GetDirections(ctx, state, config)
		require.NoError(t, err)
		if !dirs.IsImmediate() {
			return state, config, dirs
		}
		next, nextConfig, nextDirs, err := p.Dispatch(ctx, 1, state, config, *dirs.Action)
		require.NoError(t, err)
		if next == state {
			return state, nextConfig, nextDirs
		}
		state, config = next, nextConfig
	}
}

func TestAnalysis_TradeProfit(t *testing.T) {
	p := newTestPipeline(t, customConfig(), newFakeConnector())
	config := brokerConfig()
	config["account.income.statement.TRADE_PROFIT_STOCK"] = "3500"

	state, _, dirs := advance(t, p, NewState(brokerFile()), config)
	require.Equal(t, StageExecuted, state.Stage(), dirs.String())
	executed := state.(*ExecutedState)

	var buy, sell model.Transaction
	for _, txs := range executed.Executed {
		switch txs[0].Date.Month() {
		case time.February:
			buy = txs[0]
		case time.March:
			sell = txs[0]
		}
	}

	require.Len(t, buy.Entries, 2)
	assert.Equal(t, "Buy +10 ACME", buy.Entries[0].Description)
	assert.Equal(t, int64(-100000), buy.Entries[0].Amount)
	assert.Equal(t, "1550", buy.Entries[1].Account)
	assert.Equal(t, int64(100000), buy.Entries[1].Amount)

	require.Len(t, sell.Entries, 3)
	assert.Equal(t, "Sell -4 ACME", sell.Entries[0].Description)
	assert.Equal(t, int64(60000), sell.Entries[0].Amount)
	assert.Equal(t, int64(-40000), sell.Entries[1].Amount)
	assert.Equal(t, "3500", sell.Entries[2].Account)
	assert.Equal(t, int64(-20000), sell.Entries[2].Amount)
	assert.Equal(t, int64(0), sell.Total())

	last, ok := p.Stock().Last(ledger.StockStock, "ACME")
	require.True(t, ok)
	assert.InDelta(t, 6.0, last.Amount, 1e-9)
	assert.InDelta(t, 60000.0, last.Value, 1e-9)
	assert.Equal(t, int64(-40000), p.Balances().Get("1920"))
	assert.Equal(t, int64(-20000), p.Balances().Get("3500"))

	state, _, _, err := p.Dispatch(context.Background(), 1, state, brokerConfig(), RollbackAction())
	require.NoError(t, err)
	assert.Equal(t, StageRolledBack, state.Stage())
	assert.InDelta(t, 0.0, p.Stock().Total("ACME"), 1e-9)
	assert.Equal(t, int64(0), p.Balances().Get("1550"))
}

func TestAnalysis_MissingProfitAccountAsksForIt(t *testing.T) {
	p := newTestPipeline(t, customConfig(), newFakeConnector())

	state, _, dirs := advance(t, p, NewState(brokerFile()), brokerConfig())
	assert.Equal(t, StageClassified, state.Stage())
	assert.Equal(t, DirectionUI, dirs.Type)
	require.Len(t, dirs.Queries, 1)
	assert.Equal(t, "account.income.statement.TRADE_PROFIT_STOCK", dirs.Queries[0].Variable)
	assert.Empty(t, p.Stock().Assets(), "a failed analysis leaves the stock alone")
}

func TestAnalysis_SellingMoreThanOwned(t *testing.T) {
	file := brokerFile()
	file.Lines = file.Lines[1:]
	ctx := context.Background()

	for _, shortSelling := range []bool{false, true} {
		p := newTestPipeline(t, customConfig(), newFakeConnector())
		config := brokerConfig()
		config[ConfigAllowShortSelling] = shortSelling
		config["account.trade.short.*"] = "2990"

		var state State = NewState(file)
		for _, op := range []Op{OpSegmentation, OpClassification} {
			var err error
			state, config, _, err = p.Dispatch(ctx, 1, state, config, OpAction(op))
			require.NoError(t, err)
		}
		require.Equal(t, StageClassified, state.Stage())
		_, _, _, err := p.Dispatch(ctx, 1, state, config, OpAction(OpAnalysis))
		if shortSelling {
			assert.ErrorIs(t, err, ErrShortSelling)
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
}

func TestAnalysis_AssetRenaming(t *testing.T) {
	file := brokerFile()
	file.Lines = file.Lines[:1]
	p := newTestPipeline(t, customConfig(), newFakeConnector())

	config := brokerConfig().WithAnswers(map[string]map[string]any{
		"": {AnswerAssetRenaming: []any{
			map[string]any{"date": "2023-06-01", "type": "stock", "old": "ACME", "new": "ACMX"},
		}},
	})
	state, _, dirs := advance(t, p, NewState(file), config)
	require.Equal(t, StageExecuted, state.Stage(), dirs.String())

	executed := state.(*ExecutedState)
	renamed := executed.Executed["rename-stock-ACME-ACMX"]
	require.Len(t, renamed, 1)
	require.Len(t, renamed[0].Entries, 2)
	assert.Equal(t, "Trade -10 ACME +10 ACMX (Renamed, Old name)", renamed[0].Entries[0].Description)
	assert.Equal(t, int64(-100000), renamed[0].Entries[0].Amount)
	assert.Equal(t, int64(100000), renamed[0].Entries[1].Amount)

	assert.InDelta(t, 0.0, p.Stock().Total("ACME"), 1e-9)
	last, ok := p.Stock().Last(ledger.StockStock, "ACMX")
	require.True(t, ok)
	assert.InDelta(t, 10.0, last.Amount, 1e-9)
}

func TestAnalysis_ForeignCurrencyAndTags(t *testing.T) {
	conn := newFakeConnector()
	conn.rates["USD"] = 0.9
	p := newTestPipeline(t, customConfig(), conn)

	file := model.ImportFile{Name: "card.json", Lines: []model.TextFileLine{
		{Line: 0, Text: "hosting", Columns: map[string]string{"date": "2023-04-02", "amount": "-50"}},
	}}
	config := model.ImportConfig{
		"currency": "EUR",
		"rules": []any{map[string]any{
			"name":   "Hosting",
			"filter": "true",
			"result": []any{
				map[string]any{"reason": "'expense'", "type": "'currency'", "asset": "'USD'", "amount": "num(amount)"},
				map[string]any{"reason": "'expense'", "type": "'statement'", "asset": "'HOSTING'", "text": "'Server rent'"},
			},
		}},
		"account.expense.currency.USD":      "1930",
		"account.expense.statement.HOSTING": "4600",
		"tags.expense.*.*":                  []any{"IT"},
	}

	state, _, dirs := advance(t, p, NewState(file), config)
	require.Equal(t, StageExecuted, state.Stage(), dirs.String())
	analyzed := state.(*ExecutedState).Analyzed
	require.Len(t, analyzed, 1)
	for _, desc := range analyzed {
		require.Len(t, desc.Transfers, 2)
		usd := desc.Transfers[0]
		assert.Equal(t, int64(-4500), *usd.Value)
		assert.Equal(t, "USD", usd.Data["currency"])
		assert.Equal(t, int64(-5000), usd.Data["currencyValue"])
		assert.Equal(t, map[string]any{"USD": 0.9}, usd.Data["rates"])

		statement := desc.Transfers[1]
		assert.Equal(t, int64(4500), *statement.Value)
		assert.InDelta(t, 45.0, *statement.Amount, 1e-9)
	}

	for _, txs := range state.(*ExecutedState).Executed {
		assert.Equal(t, "[IT] Hosting", txs[0].Entries[0].Description)
		assert.Equal(t, "[IT] Server rent", txs[0].Entries[1].Description)
	}
}

func TestAnalysis_ExternalDepositIgnoredUnlessRecorded(t *testing.T) {
	file := model.ImportFile{Name: "wallet.json", Lines: []model.TextFileLine{
		{Line: 0, Text: "deposit", Columns: map[string]string{"date": "2023-05-01", "amount": "100"}},
	}}
	rulesConfig := model.ImportConfig{
		"currency": "EUR",
		"rules": []any{map[string]any{
			"name":   "Deposit",
			"filter": "true",
			"result": []any{
				map[string]any{"reason": "'deposit'", "type": "'currency'", "asset": "'EUR'", "amount": "num(amount)"},
				map[string]any{"reason": "'deposit'", "type": "'external'", "asset": "'EUR'", "amount": "-num(amount)"},
			},
		}},
		"account.deposit.currency.EUR": "1910",
		"account.deposit.external.EUR": "1999",
	}

	tests := []struct {
		name    string
		record  any
		created int
		ignored int
	}{
		{"not recorded", false, 0, 1},
		{"recorded", true, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline(t, customConfig(), newFakeConnector())

			state, config, dirs := advance(t, p, NewState(file), rulesConfig)
			require.Equal(t, StageClassified, state.Stage())
			require.Len(t, dirs.Queries, 1)
			assert.Equal(t, QueryFlag, dirs.Queries[0].Kind)
			assert.Equal(t, ConfigRecordDeposits, dirs.Queries[0].Variable)

			_, config, _, err := p.Dispatch(context.Background(), 1, state, config, dirs.Queries[0].Answer(tt.record))
			require.NoError(t, err)

			state, _, _ = advance(t, p, state, config)
			require.Equal(t, StageExecuted, state.Stage())
			executed := state.(*ExecutedState)
			assert.Equal(t, tt.created, executed.Output.Created)
			assert.Equal(t, tt.ignored, executed.Output.Ignored)
			for _, txs := range executed.Executed {
				assert.Equal(t, "Deposit to Broker service", txs[0].Entries[0].Description)
			}
		})
	}
}

func TestFillLastMissing(t *testing.T) {
	value := func(v int64) *int64 { return &v }
	tests := []struct {
		name      string
		transfers []model.AssetTransfer
		canDeduct bool
		want      bool
		filled    *int64
	}{
		{
			name:      "all known",
			transfers: []model.AssetTransfer{{Value: value(5)}, {Value: value(-5)}},
			canDeduct: true,
			want:      true,
		},
		{
			name:      "one unknown",
			transfers: []model.AssetTransfer{{Value: value(5)}, {Value: value(7)}, {}},
			canDeduct: true,
			want:      true,
			filled:    value(-12),
		},
		{
			name:      "two unknown",
			transfers: []model.AssetTransfer{{Value: value(5)}, {}, {}},
			canDeduct: true,
		},
		{
			name:      "lone transfer",
			transfers: []model.AssetTransfer{{}},
			canDeduct: true,
		},
		{
			name:      "deduction not allowed",
			transfers: []model.AssetTransfer{{Value: value(5)}, {}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fillLastMissing(tt.transfers, tt.canDeduct))
			if tt.filled != nil {
				assert.Equal(t, *tt.filled, *tt.transfers[len(tt.transfers)-1].Value)
			}
		})
	}
}

func TestTransferKind(t *testing.T) {
	amount := func(f float64) *float64 { return &f }
	tests := []struct {
		name      string
		transfers []model.AssetTransfer
		kind      string
		text      string
	}{
		{
			name: "forex",
			transfers: []model.AssetTransfer{
				{Reason: "forex", Type: "currency", Asset: "EUR", Amount: amount(-100)},
				{Reason: "forex", Type: "currency", Asset: "USD", Amount: amount(110)},
			},
			kind: KindForex,
			text: "Sell currency EUR for USD",
		},
		{
			name: "dividend",
			transfers: []model.AssetTransfer{
				{Reason: "dividend", Type: "currency", Asset: "EUR", Amount: amount(3)},
				{Reason: "income", Type: "statement", Asset: "DIVIDEND", Amount: amount(-3)},
			},
			kind: KindDividend,
			text: "Dividend EUR",
		},
		{
			name: "crypto trade",
			transfers: []model.AssetTransfer{
				{Reason: "trade", Type: "crypto", Asset: "BTC", Amount: amount(-0.5)},
				{Reason: "trade", Type: "crypto", Asset: "ETH", Amount: amount(8)},
			},
			kind: KindTrade,
			text: "Trade -0.5 BTC +8 ETH",
		},
		{
			name: "transfer",
			transfers: []model.AssetTransfer{
				{Reason: "transfer", Type: "currency", Asset: "EUR", Amount: amount(-10)},
				{Reason: "transfer", Type: "external", Asset: "PayPal", Amount: amount(10)},
			},
			kind: KindTransfer,
			text: "PayPal transfer",
		},
		{
			name: "withdrawal",
			transfers: []model.AssetTransfer{
				{Reason: "withdrawal", Type: "currency", Asset: "EUR", Amount: amount(-10)},
			},
			kind: KindWithdrawal,
			text: "Withdrawal from Broker service",
		},
		{
			name: "office supplies",
			transfers: []model.AssetTransfer{
				{Reason: "expense", Type: "statement", Asset: "OFFICE_SUPPLIES"},
			},
			kind: KindExpense,
			text: "Office supplies",
		},
		{name: "nothing", kind: KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, values, err := transferKind(tt.transfers, "Broker")
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.text, kindText(kind, values))
		})
	}

	_, _, err := transferKind([]model.AssetTransfer{{Reason: "debt", Type: "currency", Asset: "EUR"}}, "")
	assert.ErrorIs(t, err, ErrUnsupportedTransfers)
}

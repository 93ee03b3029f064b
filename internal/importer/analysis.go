package importer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/rules"
)

var (
	// ErrValuation is returned when the transfers of a segment cannot all be valued.
	ErrValuation = errors.New("unable to determine valuation")
	// ErrUnbalanced is returned when valued transfers do not sum to zero.
	ErrUnbalanced = errors.New("total should be zero")
	// ErrInsufficientStock is returned when selling more than the stock holds.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrShortSelling is returned for sales beyond the stock when short selling is enabled.
	ErrShortSelling = errors.New("short selling is not supported")
)

const stockEpsilon = 1e-9

// analyzer values the transfers of one batch against copies of the ledgers.
type analyzer struct {
	p        *Pipeline
	config   model.ImportConfig
	accounts *accountResolver
	balances *ledger.Balances
	stock    *ledger.Stock
	currency string
}

func (p *Pipeline) analysis(ctx context.Context, s *ClassifiedState, config model.ImportConfig) (*AnalyzedState, error) {
	queries, err := p.needInputForAnalysis(ctx, s, config)
	if err != nil {
		return nil, err
	}
	if len(queries) > 0 {
		return nil, &inputNeeded{element: ElementAccounts, queries: queries}
	}

	custom, customResult, err := renamingSegments(config)
	if err != nil {
		return nil, err
	}
	all := make(map[model.SegmentID]model.ImportSegment, len(s.Segments)+len(custom))
	for id, segment := range s.Segments {
		all[id] = segment
	}
	for id, segment := range custom {
		all[id] = segment
	}
	segments := model.SortSegments(all)

	start, err := firstTimestamp(segments, config)
	if err != nil {
		return nil, err
	}

	a := &analyzer{
		p:        p,
		config:   config,
		accounts: newAccountResolver(p, config),
		balances: p.balances.Clone(),
		stock:    p.stock.Clone(),
		currency: config.Currency(),
	}
	if err := p.connector.InitializeBalances(ctx, start, a.balances, config); err != nil {
		return nil, fmt.Errorf("failed to initialize balances: %w", err)
	}

	skipped := make(map[model.SegmentID]bool, len(s.Skipped))
	for _, id := range s.Skipped {
		skipped[id] = true
	}

	next := &AnalyzedState{
		ClassifiedState: *s,
		Custom:          custom,
		Analyzed:        make(map[model.SegmentID]model.TransactionDescription, len(segments)),
		Transactions:    make(map[model.SegmentID][]model.Transaction, len(segments)),
	}
	for _, segment := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if skipped[segment.ID] {
			next.Transactions[segment.ID] = []model.Transaction{{
				Date:            segment.Time,
				SegmentID:       segment.ID,
				ExecutionResult: model.ResultSkipped,
			}}
			continue
		}
		desc, ok := s.Result[segment.ID]
		if !ok {
			desc, ok = customResult[segment.ID]
		}
		if !ok {
			return nil, fmt.Errorf("%w: segment %s has no classification", common.ErrBadState, segment.ID)
		}

		transfers, tx, err := a.analyze(ctx, segment, desc.Transfers)
		if err != nil {
			var need *inputNeeded
			if errors.As(err, &need) {
				return nil, err
			}
			return nil, fmt.Errorf("segment %s: %w", segment.ID, err)
		}
		next.Analyzed[segment.ID] = model.TransactionDescription{Type: desc.Type, Transfers: transfers}
		next.Transactions[segment.ID] = []model.Transaction{tx}
	}

	p.logger.Info("Analysis done", "segments", len(next.Transactions))
	return next, nil
}

func firstTimestamp(segments []model.ImportSegment, config model.ImportConfig) (time.Time, error) {
	var from time.Time
	if raw := config.String(ConfigFirstDate); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s %q: %w", common.ErrInvalidConfig, ConfigFirstDate, raw, err)
		}
		from = t
	}
	for _, segment := range segments {
		if !segment.Time.Before(from) {
			return segment.Time, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: no segments at or after the first date", common.ErrInvalidFile)
}

// analyze values the transfers of one segment and builds its transaction.
func (a *analyzer) analyze(ctx context.Context, segment model.ImportSegment, input []model.AssetTransfer) ([]model.AssetTransfer, model.Transaction, error) {
	transfers := make([]model.AssetTransfer, len(input))
	for i, t := range input {
		transfers[i] = t.Clone()
	}

	a.renamedAssets(segment, transfers)
	if err := a.values(ctx, segment, transfers); err != nil {
		return nil, model.Transaction{}, err
	}
	if err := a.changeStock(segment, transfers); err != nil {
		return nil, model.Transaction{}, err
	}

	kind, kindValues, err := transferKind(transfers, a.p.cfg.Exchange)
	if err != nil {
		return nil, model.Transaction{}, err
	}

	total := totalValue(transfers)
	if total != 0 && (kind == KindTrade || kind == KindSell || kind == KindShortBuy) {
		line, err := profitOrLoss(transfers, total)
		if err != nil {
			return nil, model.Transaction{}, err
		}
		transfers = append(transfers, line)
		total = totalValue(transfers)
	}
	if total != 0 {
		return nil, model.Transaction{}, fmt.Errorf("%w: got %s in %s", ErrUnbalanced, model.FormatCents(total, a.currency), describeTransfers(transfers))
	}

	tx, err := a.transaction(ctx, segment, transfers, kind, kindValues)
	if err != nil {
		return nil, model.Transaction{}, err
	}
	return transfers, tx, nil
}

// renamedAssets moves the whole stock of a renamed asset to its new code.
func (a *analyzer) renamedAssets(segment model.ImportSegment, transfers []model.AssetTransfer) {
	var moved ledger.AssetRecord
	for i := range transfers {
		t := &transfers[i]
		if t.Reason != model.ReasonTrade || !hasNote(t.Data, noteRenamed) {
			continue
		}
		switch {
		case hasNote(t.Data, noteOldName):
			moved = a.stock.Get(segment.Time, stockType(t.Type), t.Asset)
			t.Amount = model.Float(-moved.Amount)
			t.Value = model.Cents(-int64(math.Round(moved.Value)))
		case hasNote(t.Data, noteNewName):
			t.Amount = model.Float(moved.Amount)
			t.Value = model.Cents(int64(math.Round(moved.Value)))
		}
	}
}

// values fills in the value of every transfer, first from the default
// currency, then through exchange rates, then from the stock for sales. A
// single remaining unknown value is deduced from the others when possible.
func (a *analyzer) values(ctx context.Context, segment model.ImportSegment, transfers []model.AssetTransfer) error {
	canDeduct := !sellsNonCurrency(transfers)

	for i := range transfers {
		t := &transfers[i]
		if t.Value != nil || t.Amount == nil {
			continue
		}
		if t.Type == model.TypeAccount || (t.Type == model.TypeCurrency && t.Asset == a.currency) {
			t.Value = model.Cents(cents(*t.Amount, 1))
		}
	}
	if fillLastMissing(transfers, canDeduct) {
		return nil
	}

	for i := range transfers {
		t := &transfers[i]
		if t.Value != nil || t.Amount == nil || t.Type != model.TypeCurrency || t.Asset == a.currency {
			continue
		}
		rate, err := a.rate(ctx, segment, t, t.Type, t.Asset)
		if err != nil {
			return err
		}
		t.Value = model.Cents(cents(*t.Amount, rate))
		t.SetData("currency", t.Asset)
		t.SetData("currencyValue", cents(*t.Amount, 1))
	}
	if fillLastMissing(transfers, canDeduct) {
		return nil
	}

	for i := range transfers {
		t := &transfers[i]
		if t.Value != nil || t.Amount == nil || t.Reason != model.ReasonTax {
			continue
		}
		currency, _ := t.Data["currency"].(string)
		if currency == "" || currency == a.currency {
			t.Value = model.Cents(cents(*t.Amount, 1))
			continue
		}
		rate, err := a.rate(ctx, segment, t, model.TypeCurrency, currency)
		if err != nil {
			return err
		}
		t.Value = model.Cents(cents(*t.Amount, rate))
	}
	if fillLastMissing(transfers, canDeduct) {
		return nil
	}

	for i := range transfers {
		t := &transfers[i]
		if t.Value != nil || t.Amount == nil || (t.Reason != model.ReasonFee && t.Reason != model.ReasonDividend) {
			continue
		}
		rate, err := a.rate(ctx, segment, t, t.Type, t.Asset)
		if err != nil {
			return err
		}
		t.Value = model.Cents(cents(*t.Amount, rate))
	}
	if fillLastMissing(transfers, canDeduct) {
		return nil
	}

	for i := range transfers {
		t := &transfers[i]
		if t.Value != nil || t.Amount == nil || t.Reason != model.ReasonTrade {
			continue
		}
		if *t.Amount < 0 && (t.Type == model.TypeStock || t.Type == model.TypeCrypto) {
			value, err := a.averageCost(segment, t)
			if err != nil {
				return err
			}
			t.Value = model.Cents(value)
			continue
		}
		rate, err := a.rate(ctx, segment, t, t.Type, t.Asset)
		if err != nil {
			return err
		}
		t.Value = model.Cents(cents(*t.Amount, rate))
	}
	if fillLastMissing(transfers, canDeduct) {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrValuation, describeTransfers(transfers))
}

// averageCost values a sale of amount units at the average price of the stock.
func (a *analyzer) averageCost(segment model.ImportSegment, t *model.AssetTransfer) (int64, error) {
	record := a.stock.Get(segment.Time, stockType(t.Type), t.Asset)
	if record.Amount+*t.Amount < -stockEpsilon {
		if allowed, _ := a.config.Bool(ConfigAllowShortSelling); allowed {
			return 0, fmt.Errorf("%w: %s %s", ErrShortSelling, rules.ToString(*t.Amount), t.Asset)
		}
		return 0, fmt.Errorf("%w: selling %s %s but only %s in stock",
			ErrInsufficientStock, rules.ToString(-*t.Amount), t.Asset, rules.ToString(record.Amount))
	}
	price := decimal.NewFromFloat(record.Value).Div(decimal.NewFromFloat(record.Amount))
	return price.Mul(decimal.NewFromFloat(*t.Amount)).Round(0).IntPart(), nil
}

// rate returns the value of one unit of asset. Rates given in the transfer
// data win over the connector. Looked up rates are recorded in the data.
func (a *analyzer) rate(ctx context.Context, segment model.ImportSegment, t *model.AssetTransfer, typ model.AssetType, asset string) (float64, error) {
	if asset == a.currency {
		return 1, nil
	}
	if rates, ok := t.Data["rates"].(map[string]any); ok {
		switch v := rates[asset].(type) {
		case float64:
			return v, nil
		case string:
			if n := rules.Num(v); !math.IsNaN(n) {
				return n, nil
			}
		}
	}

	var rate float64
	err := common.WithRetry(ctx, func() error {
		var err error
		rate, err = a.p.connector.Rate(ctx, segment.Time, typ, asset, a.currency)
		return err
	}, a.p.cfg.Retry)
	if err != nil {
		return 0, fmt.Errorf("no rate for %s %s at %s: %w", typ, asset, segment.Time.Format(time.DateOnly), err)
	}

	rates, _ := t.Data["rates"].(map[string]any)
	if rates == nil {
		rates = make(map[string]any)
	}
	rates[asset] = rate
	t.SetData("rates", rates)
	return rate, nil
}

// changeStock records stock movements of stock, crypto and short transfers
// in their data and in the stock copy.
func (a *analyzer) changeStock(segment model.ImportSegment, transfers []model.AssetTransfer) error {
	for i := range transfers {
		t := &transfers[i]
		if t.Type != model.TypeStock && t.Type != model.TypeCrypto && t.Type != model.TypeShort {
			continue
		}
		if t.Amount == nil || t.Value == nil {
			continue
		}
		typ := stockType(t.Type)
		change := ledger.StockChange{Change: map[string]ledger.StockValue{
			t.Asset: {Amount: *t.Amount, Value: float64(*t.Value)},
		}}
		t.SetData("stock", change.Map())
		t.SetData("stockType", string(typ))
		if err := a.stock.Change(segment.Time, typ, t.Asset, *t.Amount, float64(*t.Value)); err != nil {
			return err
		}
	}
	return nil
}

// transaction builds the entries of a segment and applies them to the
// balance copy.
func (a *analyzer) transaction(ctx context.Context, segment model.ImportSegment, transfers []model.AssetTransfer, kind string, values kindValues) (model.Transaction, error) {
	recordDeposits, _ := a.config.Bool(ConfigRecordDeposits)
	recordWithdrawals, _ := a.config.Bool(ConfigRecordWithdrawals)

	tx := model.Transaction{
		Date:            segment.Time,
		SegmentID:       segment.ID,
		ExecutionResult: model.ResultNotDone,
	}
	template := kindText(kind, values)
	lastText := ""
	var missing []Query
	for _, t := range transfers {
		if t.Text != "" {
			lastText = t.Text
		}
		description := lastText
		if description == "" {
			description = template
		}
		description += notesSuffix(t.Data)

		tags := t.Tags
		if tags == nil {
			tags = a.config.Tags(t.Address())
		}
		if len(tags) > 0 {
			description = "[" + strings.Join(tags, "][") + "] " + description
		}

		account, candidates, err := a.accounts.resolve(ctx, segment.ID, t.Address())
		if err != nil {
			return tx, err
		}
		if account == "" {
			missing = append(missing, a.accounts.query(t.Address(), candidates))
			continue
		}

		tx.Entries = append(tx.Entries, model.TransactionLine{
			Account:     account,
			Amount:      *t.Value,
			Description: description,
			Data:        model.CloneMap(t.Data),
		})

		if t.Type == model.TypeExternal {
			if (t.Reason == model.ReasonDeposit && !recordDeposits) || (t.Reason == model.ReasonWithdrawal && !recordWithdrawals) {
				tx.ExecutionResult = model.ResultIgnored
			}
		}
	}
	if len(missing) > 0 {
		return tx, &inputNeeded{element: ElementAccounts, queries: missing}
	}

	for _, entry := range tx.Entries {
		a.balances.Apply(entry, segment.Time)
	}
	return tx, nil
}

// profitOrLoss balances a trade with a statement line for the gain or loss.
func profitOrLoss(transfers []model.AssetTransfer, total int64) (model.AssetTransfer, error) {
	var sold *model.AssetTransfer
	for i := range transfers {
		t := &transfers[i]
		if t.Reason != model.ReasonTrade || t.Value == nil || *t.Value >= 0 {
			continue
		}
		if sold != nil {
			return model.AssetTransfer{}, fmt.Errorf("%w: more than one asset sold in %s", ErrUnsupportedTransfers, describeTransfers(transfers))
		}
		sold = t
	}
	if sold == nil {
		return model.AssetTransfer{}, fmt.Errorf("%w: no sold asset in %s", ErrUnbalanced, describeTransfers(transfers))
	}

	typ := strings.ToUpper(string(sold.Type))
	line := model.AssetTransfer{
		Reason: model.ReasonIncome,
		Type:   model.TypeStatement,
		Asset:  "TRADE_PROFIT_" + typ,
		Amount: model.Float(float64(-total) / 100),
		Value:  model.Cents(-total),
	}
	if total < 0 {
		line.Reason = model.ReasonExpense
		line.Asset = "TRADE_LOSS_" + typ
	}
	if notes, ok := sold.Data["notes"]; ok {
		line.SetData("notes", model.CloneValue(notes))
	}
	return line, nil
}

// fillLastMissing deduces a single unknown value from the others. Nothing is
// deduced for a lone transfer or when canDeduct is false.
func fillLastMissing(transfers []model.AssetTransfer, canDeduct bool) bool {
	missing := -1
	count := 0
	var total int64
	for i, t := range transfers {
		if t.Value == nil {
			count++
			missing = i
			continue
		}
		total += *t.Value
	}
	switch {
	case count == 0:
		return true
	case count > 1, len(transfers) == 1, !canDeduct:
		return false
	}

	t := &transfers[missing]
	t.Value = model.Cents(-total)
	if t.Type == model.TypeStatement && (t.Reason == model.ReasonIncome || t.Reason == model.ReasonExpense) && t.Amount == nil {
		t.Amount = model.Float(float64(-total) / 100)
	}
	return true
}

// sellsNonCurrency reports whether a trade gives away something else than
// money. Such a sale is valued from the stock, never deduced.
func sellsNonCurrency(transfers []model.AssetTransfer) bool {
	for _, t := range transfers {
		if t.Reason == model.ReasonTrade && t.Type != model.TypeCurrency && t.Type != model.TypeAccount &&
			t.Amount != nil && *t.Amount < 0 {
			return true
		}
	}
	return false
}

func totalValue(transfers []model.AssetTransfer) int64 {
	var total int64
	for _, t := range transfers {
		if t.Value != nil {
			total += *t.Value
		}
	}
	return total
}

// cents converts amount units at rate into rounded cents.
func cents(amount, rate float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func stockType(typ model.AssetType) ledger.StockType {
	switch typ {
	case model.TypeCrypto:
		return ledger.StockCrypto
	case model.TypeStock, model.TypeShort:
		return ledger.StockStock
	case model.TypeCurrency:
		return ledger.StockCurrency
	default:
		return ledger.StockOther
	}
}

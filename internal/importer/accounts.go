package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// Configuration keys read by analysis and execution.
const (
	ConfigRecordDeposits    = "recordDeposits"
	ConfigRecordWithdrawals = "recordWithdrawals"
	ConfigAllowIdenticalTx  = "allowIdenticalTx"
	ConfigAllowShortSelling = "allowShortSelling"
	ConfigFirstDate         = "firstDate"

	// AnswerAssetRenaming is the answer of the batch wide segment "" listing
	// renamed assets as {date, type, old, new} records.
	AnswerAssetRenaming = "asset-renaming"
)

// accountResolver finds account numbers for addresses. Connector candidates
// are cached per address for the life of one stage run.
type accountResolver struct {
	p          *Pipeline
	config     model.ImportConfig
	candidates map[model.AccountAddress][]string
}

func newAccountResolver(p *Pipeline, config model.ImportConfig) *accountResolver {
	return &accountResolver{p: p, config: config, candidates: make(map[model.AccountAddress][]string)}
}

// resolve returns the account for addr. When it cannot be decided the
// account is empty and the candidates offered by the connector are returned.
func (r *accountResolver) resolve(ctx context.Context, segment model.SegmentID, addr model.AccountAddress) (string, []string, error) {
	if account, ok := r.config.Account(addr); ok {
		return account, nil, nil
	}
	_, _, asset, err := addr.Parts()
	if err != nil {
		return "", nil, err
	}
	if isAllDigits(asset) {
		return asset, nil, nil
	}
	if v, ok := r.config.Answer(segment, "account."+string(addr)); ok {
		if account := fmt.Sprint(v); v != nil && account != "" {
			return account, nil, nil
		}
	}

	candidates, ok := r.candidates[addr]
	if !ok {
		candidates, err = r.p.connector.AccountCandidates(ctx, addr, r.config)
		if err != nil {
			return "", nil, fmt.Errorf("account candidates for %s: %w", addr, err)
		}
		r.candidates[addr] = candidates
	}
	if len(candidates) == 1 {
		return candidates[0], nil, nil
	}
	return "", candidates, nil
}

func (r *accountResolver) query(addr model.AccountAddress, candidates []string) Query {
	return Query{
		Kind:       QueryAccount,
		Variable:   "account." + string(addr),
		Prompt:     fmt.Sprintf("Select account for %s", addr),
		Type:       "account",
		Candidates: candidates,
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// segmentAddresses lists the addresses a segment needs accounts for.
func segmentAddresses(transfers []model.AssetTransfer, config model.ImportConfig) []model.AccountAddress {
	shortSelling, _ := config.Bool(ConfigAllowShortSelling)
	seen := make(map[model.AccountAddress]bool)
	var out []model.AccountAddress
	add := func(addr model.AccountAddress) {
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	for _, t := range transfers {
		add(t.Address())
		if shortSelling && t.Reason == model.ReasonTrade && (t.Type == model.TypeStock || t.Type == model.TypeCrypto) {
			add(model.NewAddress(model.ReasonTrade, model.TypeShort, t.Asset))
		}
	}
	return out
}

// needInputForAnalysis lists the accounts and flags analysis cannot decide alone.
func (p *Pipeline) needInputForAnalysis(ctx context.Context, s *ClassifiedState, config model.ImportConfig) ([]Query, error) {
	custom, customResult, err := renamingSegments(config)
	if err != nil {
		return nil, err
	}
	resolver := newAccountResolver(p, config)

	missing := make(map[model.AccountAddress][]string)
	var deposits, withdrawals bool

	check := func(segment model.SegmentID, desc model.TransactionDescription) error {
		for _, addr := range segmentAddresses(desc.Transfers, config) {
			if _, done := missing[addr]; done {
				continue
			}
			account, candidates, err := resolver.resolve(ctx, segment, addr)
			if err != nil {
				return err
			}
			if account == "" {
				missing[addr] = candidates
			}
		}
		for _, t := range desc.Transfers {
			if t.Type != model.TypeExternal {
				continue
			}
			deposits = deposits || t.Reason == model.ReasonDeposit
			withdrawals = withdrawals || t.Reason == model.ReasonWithdrawal
		}
		return nil
	}

	for _, segment := range model.SortSegments(s.Segments) {
		if desc, ok := s.Result[segment.ID]; ok {
			if err := check(segment.ID, desc); err != nil {
				return nil, err
			}
		}
	}
	for _, segment := range model.SortSegments(custom) {
		if err := check(segment.ID, customResult[segment.ID]); err != nil {
			return nil, err
		}
	}

	addrs := make([]model.AccountAddress, 0, len(missing))
	for addr := range missing {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	queries := make([]Query, 0, len(addrs)+2)
	for _, addr := range addrs {
		queries = append(queries, resolver.query(addr, missing[addr]))
	}
	if _, found := config.Bool(ConfigRecordDeposits); deposits && !found {
		queries = append(queries, flagQuery(ConfigRecordDeposits, "Record deposits made from external sources?"))
	}
	if _, found := config.Bool(ConfigRecordWithdrawals); withdrawals && !found {
		queries = append(queries, flagQuery(ConfigRecordWithdrawals, "Record withdrawals made to external targets?"))
	}
	return queries, nil
}

func flagQuery(key, prompt string) Query {
	return Query{Kind: QueryFlag, Variable: key, Prompt: prompt, Type: "boolean"}
}

// renamingSegments builds one segment per asset renaming answer. Each has two
// trades moving the whole stock from the old code to the new one.
func renamingSegments(config model.ImportConfig) (map[model.SegmentID]model.ImportSegment, map[model.SegmentID]model.TransactionDescription, error) {
	raw, ok := config.Answer("", AnswerAssetRenaming)
	if !ok || raw == nil {
		return nil, nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("answer %s must be a list, got %T", AnswerAssetRenaming, raw)
	}

	segments := make(map[model.SegmentID]model.ImportSegment, len(list))
	results := make(map[model.SegmentID]model.TransactionDescription, len(list))
	for i, entry := range list {
		fields, ok := entry.(map[string]any)
		if !ok {
			return nil, nil, fmt.Errorf("asset renaming %d: expected an object, got %T", i, entry)
		}
		date := strings.TrimSpace(fmt.Sprint(fields["date"]))
		typ := model.AssetType(fmt.Sprint(fields["type"]))
		oldName, _ := fields["old"].(string)
		newName, _ := fields["new"].(string)
		if oldName == "" || newName == "" || (typ != model.TypeStock && typ != model.TypeCrypto) {
			return nil, nil, fmt.Errorf("asset renaming %d: need type stock or crypto with old and new names", i)
		}
		t, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, nil, fmt.Errorf("asset renaming %d: bad date %q: %w", i, date, err)
		}

		id := model.SegmentID(fmt.Sprintf("rename-%s-%s-%s", typ, oldName, newName))
		segments[id] = model.ImportSegment{ID: id, Time: t.UTC()}
		results[id] = model.TransactionDescription{
			Type: "transfers",
			Transfers: []model.AssetTransfer{
				{Reason: model.ReasonTrade, Type: typ, Asset: oldName, Data: map[string]any{"notes": []any{noteRenamed, noteOldName}}},
				{Reason: model.ReasonTrade, Type: typ, Asset: newName, Data: map[string]any{"notes": []any{noteRenamed, noteNewName}}},
			},
		}
	}
	return segments, results, nil
}

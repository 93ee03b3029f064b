package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/Veraticus/spice-ledger/internal/importer"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// SummaryMarkdown describes a process and its latest state as markdown.
func SummaryMarkdown(p *model.Process, state importer.State, directions importer.Directions) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Import #%d: %s\n\n", p.ID, p.Name)
	fmt.Fprintf(&b, "- **Status:** %s\n", p.Status)
	fmt.Fprintf(&b, "- **Step:** %d\n", p.CurrentStep)
	if state != nil {
		fmt.Fprintf(&b, "- **Stage:** %s\n", state.Stage())
	}
	fmt.Fprintf(&b, "- **Next:** %s\n", directions)
	if p.Error != "" {
		fmt.Fprintf(&b, "- **Error:** `%s`\n", p.Error)
	}
	if len(p.Files) > 0 {
		names := make([]string, len(p.Files))
		for i, f := range p.Files {
			names[i] = f.Name
		}
		fmt.Fprintf(&b, "- **Files:** %s\n", strings.Join(names, ", "))
	}

	if len(directions.Queries) > 0 {
		b.WriteString("\n## Open questions\n\n")
		for _, q := range directions.Queries {
			fmt.Fprintf(&b, "- %s: %s\n", q.Kind, q.Prompt)
		}
	}

	txs, results := transactions(state)
	if len(results) > 0 {
		b.WriteString("\n## Results\n\n| Result | Transactions |\n|---|---|\n")
		keys := make([]string, 0, len(results))
		for r := range results {
			keys = append(keys, string(r))
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %d |\n", k, results[model.ExecutionResult(k)])
		}
	}
	if len(txs) > 0 {
		currency := p.Config.Currency()
		b.WriteString("\n## Transactions\n\n| Date | Account | Amount | Description |\n|---|---|---:|---|\n")
		for _, tx := range txs {
			for _, e := range tx.Entries {
				fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
					tx.Date.Format("2006-01-02"), e.Account, model.FormatCents(e.Amount, currency), escapeCell(e.Description))
			}
		}
	}
	return b.String()
}

// transactions returns the transactions of the state sorted by date and
// segment, with execution result counts when the state was executed.
func transactions(state importer.State) ([]model.Transaction, map[model.ExecutionResult]int) {
	var bySegment map[model.SegmentID][]model.Transaction
	var results map[model.ExecutionResult]int
	switch s := state.(type) {
	case *importer.AnalyzedState:
		bySegment = s.Transactions
	case *importer.ExecutedState:
		bySegment = s.Executed
		results = s.Summary()
	case *importer.RolledBackState:
		bySegment = s.Reverted
		results = s.Summary()
	}

	var out []model.Transaction
	for _, txs := range bySegment {
		out = append(out, txs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].SegmentID < out[j].SegmentID
	})
	return out, results
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Render formats markdown for the terminal. An empty style picks one from the
// terminal background.
func Render(markdown, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/ledger"
	"github.com/Veraticus/spice-ledger/internal/model"
)

func balanceCmd() *cobra.Command {
	var (
		at       string
		currency string
	)

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show account balances",
		Long: `Show the balance of every account with stored entries. With --at only
entries dated before the given day are counted.`,
		Example: `  # Balances at the start of 2024
  spice-ledger balance --at 2024-01-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.ListAccounts(ctx)
			if err != nil {
				return err
			}
			names := make(map[string]string, len(accounts))
			for _, acc := range accounts {
				names[acc.Number] = acc.Name
			}

			totals := make(map[string]int64)
			var order []string
			if at != "" {
				t, err := parseDate(at)
				if err != nil {
					return err
				}
				balances := ledger.NewBalances(slog.Default())
				if err := store.InitializeBalances(ctx, t, balances, model.ImportConfig{}); err != nil {
					return err
				}
				order = balances.Accounts()
				for _, number := range order {
					totals[number] = balances.Get(number)
				}
			} else {
				for _, acc := range accounts {
					total, err := store.Balance(ctx, acc.Number)
					if err != nil {
						return err
					}
					order = append(order, acc.Number)
					totals[acc.Number] = total
				}
			}

			if len(order) == 0 {
				cmd.Println(cli.SubtleStyle.Render("No balances found."))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cli.PrimaryColor)
			fmt.Fprintln(w, strings.Join([]string{
				headerStyle.Render("ACCOUNT"),
				headerStyle.Render("NAME"),
				headerStyle.Render("BALANCE"),
			}, "\t")+"\t")

			var sum int64
			for _, number := range order {
				sum += totals[number]
				fmt.Fprintf(w, "%s\t%s\t%s\t\n", number, names[number], model.FormatCents(totals[number], currency))
			}
			fmt.Fprintf(w, "\t%s\t%s\t\n", cli.SubtleStyle.Render("total"), model.FormatCents(sum, currency))
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Count entries dated before YYYY-MM-DD")
	cmd.Flags().StringVarP(&currency, "currency", "c", "EUR", "Currency of the amounts")

	return cmd
}

// stockEpsilon hides the rounding leftovers of sold assets.
const stockEpsilon = 1e-8

func stockCmd() *cobra.Command {
	var (
		all      bool
		currency string
	)

	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Show assets held",
		Long: `Show the latest amount and value of every asset bought or sold by the
stored imports.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stock := ledger.NewStock(slog.Default())
			if err := store.LoadStock(ctx, stock); err != nil {
				return err
			}

			epsilon := stockEpsilon
			if all {
				epsilon = 0
			}
			var rows []ledger.AssetTotal
			for _, total := range stock.Totals() {
				if epsilon > 0 && decimal.NewFromFloat(total.Amount).Abs().LessThan(decimal.NewFromFloat(epsilon)) {
					continue
				}
				rows = append(rows, total)
			}
			if len(rows) == 0 {
				cmd.Println(cli.SubtleStyle.Render("No assets held."))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cli.PrimaryColor)
			fmt.Fprintln(w, strings.Join([]string{
				headerStyle.Render("TYPE"),
				headerStyle.Render("ASSET"),
				headerStyle.Render("AMOUNT"),
				headerStyle.Render("VALUE"),
				headerStyle.Render("SINCE"),
			}, "\t"))
			for _, row := range rows {
				last, _ := stock.Last(row.Type, row.Asset)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					row.Type,
					cli.InfoStyle.Render(row.Asset),
					decimal.NewFromFloat(row.Amount).String(),
					model.FormatCents(int64(last.Value), currency),
					last.Time.Format(time.DateOnly),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include assets sold completely")
	cmd.Flags().StringVarP(&currency, "currency", "c", "EUR", "Currency of the values")

	return cmd
}

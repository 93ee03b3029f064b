package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

func showCmd() *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "show <process-id>",
		Short: "Show the state of an import",
		Long: `Show an import process with its open questions, per-segment results and
the transactions it built or stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseProcessID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			a, p, err := openProcessApp(ctx, id)
			if err != nil {
				return err
			}
			defer a.Close()

			state, directions, err := a.runner.State(ctx, id)
			if err != nil {
				return err
			}
			out, err := cli.Render(cli.SummaryMarkdown(p, state, directions), style, viper.GetInt("ui.width"))
			if err != nil {
				return err
			}
			cmd.Print(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "Glamour style: dark, light or notty (default: detected from the terminal)")

	return cmd
}

func listCmd() *cobra.Command {
	var (
		statuses []string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import processes",
		Example: `  # Imports waiting for answers
  spice-ledger list --status WAITING`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			filter := service.ProcessFilter{Limit: limit}
			for _, s := range statuses {
				filter.Status = append(filter.Status, model.ProcessStatus(strings.ToUpper(s)))
			}
			processes, err := store.ListProcesses(ctx, filter)
			if err != nil {
				return err
			}
			if len(processes) == 0 {
				cmd.Println(cli.SubtleStyle.Render("No imports found."))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cli.PrimaryColor)
			fmt.Fprintln(w, strings.Join([]string{
				headerStyle.Render("ID"),
				headerStyle.Render("NAME"),
				headerStyle.Render("STATUS"),
				headerStyle.Render("STEP"),
				headerStyle.Render("UPDATED"),
			}, "\t"))

			now := time.Now()
			for _, p := range processes {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
					p.ID,
					p.Name,
					cli.FormatStatus(p.Status),
					p.CurrentStep,
					cli.SubtleStyle.Render(formatRelativeTime(p.Updated, now)),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list imports with these statuses")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of imports")

	return cmd
}

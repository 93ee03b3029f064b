package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/knowledge"
)

func knowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Inspect the knowledge base",
		Long: `Inspect the account code trees and VAT classes read from the file
configured as knowledge.path.`,
	}

	cmd.AddCommand(knowledgeInfoCmd())
	cmd.AddCommand(vatCmd())

	return cmd
}

func knowledgeInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Count the entries of the knowledge base",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kb, err := loadKnowledge()
			if err != nil {
				return err
			}
			counts := kb.Counts()
			cmd.Println(cli.FormatTitle("Knowledge base"))
			for _, kind := range []string{"assets", "income", "expense", "vat"} {
				cmd.Printf("%-8s %d\n", kind, counts[kind])
			}
			return nil
		},
	}
}

func vatCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "vat",
		Short: "Show the VAT classes valid on a day",
		Example: `  spice-ledger knowledge vat --date 2024-06-30`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := parseDate(date)
			if err != nil {
				return err
			}
			kb, err := loadKnowledge()
			if err != nil {
				return err
			}
			table := kb.VATTable(t)
			if len(table) == 0 {
				cmd.Println(cli.SubtleStyle.Render("No VAT classes valid on " + t.Format("2006-01-02") + "."))
				return nil
			}
			return writeVATTable(cmd, table)
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "Day as YYYY-MM-DD (default: today)")

	return cmd
}

func writeVATTable(cmd *cobra.Command, table []knowledge.VATTableEntry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(cli.PrimaryColor)
	fmt.Fprintln(w, strings.Join([]string{
		headerStyle.Render("CLASS"),
		headerStyle.Render("NAME"),
		headerStyle.Render("PERCENT"),
	}, "\t"))
	for _, entry := range table {
		fmt.Fprintf(w, "%s%s\t%s\t%g\n", strings.Repeat("  ", entry.Level), entry.ID, entry.Name, entry.Value)
	}
	return w.Flush()
}

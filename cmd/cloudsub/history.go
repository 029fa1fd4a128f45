package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cloudsub/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the transfer history ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			entries, err := ledger.All(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "History is empty")
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			rows := make([]table.Row, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, table.Row{
					entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					entry.Title,
					unitLabel(entry),
					entry.Status,
					entry.FileName,
					entry.FilterScore,
				})
			}
			renderTable(out, table.Row{"When", "Title", "Unit", "Status", "File", "Score"}, rows, 6)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show (0 for all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every history entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if err := ledger.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	})
	return cmd
}

func openLedger(ctx *commandContext) (*history.Ledger, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg)
}

func unitLabel(entry history.Entry) string {
	if entry.Episode == 0 && entry.Season == 0 {
		return "movie"
	}
	return fmt.Sprintf("S%02dE%02d", entry.Season, entry.Episode)
}

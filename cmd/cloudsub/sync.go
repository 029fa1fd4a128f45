package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass over all active subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := ctx.buildEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			summary, err := eng.syncer.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s: %d transferred, %d failed in %s\n",
				summary.RunID, summary.Transferred, summary.Failed,
				summary.Duration.Round(time.Second))
			for _, title := range summary.Completed {
				fmt.Fprintf(out, "Completed: %s\n", title)
			}

			if len(summary.APICalls) > 0 {
				endpoints := make([]string, 0, len(summary.APICalls))
				for endpoint := range summary.APICalls {
					endpoints = append(endpoints, endpoint)
				}
				sort.Strings(endpoints)
				rows := make([]table.Row, 0, len(endpoints))
				for _, endpoint := range endpoints {
					rows = append(rows, table.Row{endpoint, summary.APICalls[endpoint]})
				}
				renderTable(out, table.Row{"Endpoint", "Calls"}, rows, 2)
			}
			return nil
		},
	}
}

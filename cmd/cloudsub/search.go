package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cloudsub/internal/discovery"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var season int
	var tmdbID int64

	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search all configured backends for share links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}

			registry := discovery.NewRegistry(cfg.Search, logger)
			if len(registry.Backends()) == 0 {
				return fmt.Errorf("no search backends configured")
			}

			req := discovery.Request{
				Title:  args[0],
				TMDBID: tmdbID,
				Season: season,
				Type:   discovery.Movie,
			}
			if season > 0 {
				req.Type = discovery.Series
			}

			seen := make(map[string]struct{})
			var rows []table.Row
			for _, backend := range registry.Backends() {
				for _, resource := range registry.SearchOne(cmd.Context(), backend, req) {
					if _, dup := seen[resource.ShareURL]; dup {
						continue
					}
					seen[resource.ShareURL] = struct{}{}
					rows = append(rows, table.Row{resource.Source, resource.Title, resource.ShareURL})
				}
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No resources found")
				return nil
			}
			renderTable(out, table.Row{"Source", "Title", "Share URL"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&season, "season", 0, "Search for a series season instead of a movie")
	cmd.Flags().Int64Var(&tmdbID, "tmdb-id", 0, "TMDB identifier for ID-based backends")
	return cmd
}

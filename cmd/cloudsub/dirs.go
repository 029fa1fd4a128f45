package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newDirsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dirs [path]",
		Short: "List a remote drive directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			client, err := ctx.driveClient(cfg, logger)
			if err != nil {
				return err
			}

			remotePath := "/"
			if len(args) == 1 {
				remotePath = args[0]
			}
			entries, err := client.ListDirectory(cmd.Context(), remotePath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "%s is empty\n", remotePath)
				return nil
			}
			rows := make([]table.Row, 0, len(entries))
			for _, entry := range entries {
				kind, size := "file", humanize.IBytes(uint64(entry.SizeBytes()))
				if entry.IsDir() {
					kind, size = "dir", ""
				}
				rows = append(rows, table.Row{entry.Name, kind, size})
			}
			renderTable(out, table.Row{"Name", "Type", "Size"}, rows, 3)
			return nil
		},
	}
}

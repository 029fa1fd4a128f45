package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cloudsub/internal/drive"
)

func newTransferCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <share-url> <dest-path>",
		Short: "Receive an entire share into a drive directory",
		Args:  cobra.ExactArgs(2),
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

			shareURL, destPath := args[0], args[1]
			shareCode, receiveCode, err := drive.ParseShareLink(shareURL)
			if err != nil {
				return err
			}
			status, err := client.CheckShare(cmd.Context(), shareURL)
			if err != nil {
				return err
			}
			if !status.Valid {
				return fmt.Errorf("%w: %s", drive.ErrShareInvalid, status.Status)
			}

			if err := client.Transfer(cmd.Context(), shareCode, receiveCode, drive.WholeShare, destPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Transferred share %s to %s\n", shareCode, destPath)
			return nil
		},
	}
}

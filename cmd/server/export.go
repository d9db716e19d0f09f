package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newExportCmd(logger zerolog.Logger) *cobra.Command {
	var opts struct {
		ProjectID string
		ChatID    string
	}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one chat as a ShareGPT dataset archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			dbStore, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer dbStore.Close()

			exporter, err := newExporter(ctx, dbStore, logger)
			if err != nil {
				return err
			}
			res, err := exporter.ExportChatDataset(ctx, opts.ProjectID, opts.ChatID)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.FilePath)
			if res.ObjectKey != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.ObjectKey)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.ChatID, "chat", "", "chat id")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("chat")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"photoline/internal/config"
	"photoline/internal/reconcile"
	"photoline/internal/store"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var jsonFlag bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Settle stale pending image rows once",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.cliLogger()
			if err != nil {
				return err
			}
			objects, err := ctx.openObjects(cmd.Context(), logger)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				report, err := reconcile.New(cfg, st, objects, logger).Sweep(cmd.Context())
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checked %d pending rows: %d stored, %d abandoned, %d skipped, %d errors\n",
					report.Checked, report.Stored, report.Abandoned, report.Skipped, report.Errors)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	return cmd
}

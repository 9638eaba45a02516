package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photoline/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		addr     string
		jsonFlag bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient(addr)
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address (defaults to paths.api_bind)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Daemon:    running=%s pid=%d\n", yesNo(status.Running), status.PID)
	fmt.Fprintf(out, "Database:  %s (ok=%s, schema %s)\n", status.DatabasePath, yesNo(status.DatabaseOK), status.SchemaVersion)
	if status.DatabaseError != "" {
		fmt.Fprintf(out, "           error: %s\n", status.DatabaseError)
	}
	fmt.Fprintf(out, "Storage:   %s\n", status.StorageBackend)
	fmt.Fprintf(out, "Reconcile: %s\n", yesNo(status.Reconcile))
	fmt.Fprintf(out, "Members:   %d (%d approved)\n", status.Users, status.ApprovedUsers)

	rows := [][]string{
		{"pending", strconv.Itoa(status.Images["pending"])},
		{"stored", strconv.Itoa(status.Images["stored"])},
		{"abandoned", strconv.Itoa(status.Images["abandoned"])},
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Images"}, rows, []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintf(out, "Stored bytes: %s\n", humanize.IBytes(uint64(max(status.StoredBytes, 0))))
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photoline/internal/api"
	"photoline/internal/config"
	"photoline/internal/store"
)

func newImagesCommand(ctx *commandContext) *cobra.Command {
	imagesCmd := &cobra.Command{
		Use:   "images",
		Short: "Inspect stored images",
	}
	imagesCmd.AddCommand(newImagesListCommand(ctx))
	return imagesCmd
}

func newImagesListCommand(ctx *commandContext) *cobra.Command {
	var (
		authUserID string
		status     string
		limit      int
		jsonFlag   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List images, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.ListFilter{Limit: limit}
			switch s := store.ImageStatus(strings.ToLower(strings.TrimSpace(status))); s {
			case "", store.StatusPending, store.StatusStored, store.StatusAbandoned:
				filter.Status = s
			default:
				return fmt.Errorf("unknown status %q (want pending, stored or abandoned)", status)
			}

			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				if id := strings.TrimSpace(authUserID); id != "" {
					user, err := st.UserByAuthID(cmd.Context(), id)
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("member %q not found", id)
					}
					if err != nil {
						return err
					}
					filter.UserID = user.ID
				}
				images, err := st.ListImages(cmd.Context(), filter)
				if err != nil {
					return err
				}
				items := api.FromImages(images)
				if jsonFlag {
					return writeJSON(cmd, api.ImageListResponse{Images: items})
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No images")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, img := range items {
					location := img.URL
					if location == "" {
						location = img.StorageKey
					}
					rows = append(rows, []string{
						strconv.FormatInt(img.ID, 10),
						img.Status,
						fmt.Sprintf("%dx%d", img.Width, img.Height),
						humanize.IBytes(uint64(max(img.Bytes, 0))),
						location,
						img.ErrorCode,
						img.CreatedAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Size", "Bytes", "Location", "Error", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&authUserID, "user", "", "Only show this member's images")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, stored, abandoned)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	return cmd
}

package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photoline/internal/api"
	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/ingest"
	"photoline/internal/media/compress"
	"photoline/internal/media/normalize"
	"photoline/internal/media/orientation"
	"photoline/internal/media/raster"
	"photoline/internal/services/objectstore"
	"photoline/internal/store"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		authUserID   string
		orientFlag   int
		jsonFlag     bool
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Run an image through the full pipeline in-process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := readSubmission(args[0], authUserID, orientFlag)
			if err != nil {
				return err
			}
			logger, err := ctx.cliLogger()
			if err != nil {
				return err
			}
			objects, err := ctx.openObjects(cmd.Context(), logger)
			if err != nil {
				return err
			}
			if showProgress {
				out := cmd.ErrOrStderr()
				sub.Progress = func(p objectstore.Progress) {
					fmt.Fprintf(out, "\ruploading %5.1f%%", p.Percent())
					if p.Sent == p.Total {
						fmt.Fprintln(out)
					}
				}
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				svc, err := ingest.NewFromConfig(cfg, st, objects, nil, logger)
				if err != nil {
					return err
				}
				result, err := svc.Submit(cmd.Context(), sub)
				if err != nil {
					return err
				}
				if jsonFlag {
					return writeJSON(cmd, api.FromResult(result, ""))
				}
				printStored(cmd, result.URL, result.Filename, result.Width, result.Height, result.Bytes)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&authUserID, "user", "", "Auth user id of the submitting member")
	cmd.Flags().IntVar(&orientFlag, "orientation", 0, "EXIF orientation override (1-8)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Print upload progress to stderr")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var (
		authUserID string
		orientFlag int
		addr       string
		jsonFlag   bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Normalize an image locally and post it to a running daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sub, err := readSubmission(args[0], authUserID, orientFlag)
			if err != nil {
				return err
			}
			prepared, err := prepareLocally(cfg, sub)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient(addr)
			if err != nil {
				return err
			}
			resp, err := client.Upload(cmd.Context(), api.UploadRequest{
				AuthUserID:  sub.AuthUserID,
				Filename:    sub.Filename,
				ContentType: prepared.ContentType(),
				Data:        prepared.Data,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				return writeJSON(cmd, resp)
			}
			printStored(cmd, resp.URL, resp.Filename, resp.Width, resp.Height, resp.Bytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&authUserID, "user", "", "Auth user id of the submitting member")
	cmd.Flags().IntVar(&orientFlag, "orientation", 0, "EXIF orientation override (1-8)")
	cmd.Flags().StringVar(&addr, "addr", "", "Daemon API address (defaults to paths.api_bind)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// readSubmission loads a local file. Read failures map to CLIENT-FILE-001.
func readSubmission(path, authUserID string, orient int) (ingest.Submission, error) {
	path = strings.TrimSpace(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Submission{}, faults.New(faults.ClientFile, path, err)
	}
	tag := orientation.Tag(orient)
	if orient != 0 && !tag.Valid() {
		return ingest.Submission{}, fmt.Errorf("--orientation must be between 1 and 8")
	}
	return ingest.Submission{
		Data:         data,
		ContentType:  objectstore.NormalizeContentType(http.DetectContentType(data)),
		Filename:     filepath.Base(path),
		DeclaredSize: int64(len(data)),
		AuthUserID:   strings.TrimSpace(authUserID),
		Orientation:  tag,
	}, nil
}

// prepareLocally runs normalization and compression with the configured
// policy so only an upright, in-budget JPEG crosses the network. The daemon
// runs the full pipeline again.
func prepareLocally(cfg *config.Config, sub ingest.Submission) (*raster.Image, error) {
	normalizer, err := normalize.New(ingest.NormalizePolicy(cfg))
	if err != nil {
		return nil, err
	}
	compressor, err := compress.New(ingest.CompressPolicy(cfg))
	if err != nil {
		return nil, err
	}
	img, err := normalizer.Normalize(sub.Data, sub.Orientation)
	if err != nil {
		return nil, err
	}
	return compressor.Fit(img, cfg.Limits.UploadBudgetBytes)
}

func printStored(cmd *cobra.Command, url, filename string, width, height int, size int64) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stored %s\n", filename)
	fmt.Fprintf(out, "  url:  %s\n", url)
	fmt.Fprintf(out, "  size: %dx%d, %s\n", width, height, humanize.IBytes(uint64(max(size, 0))))
}

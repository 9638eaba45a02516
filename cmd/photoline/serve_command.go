package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"photoline/internal/daemon"
	"photoline/internal/ingest"
	"photoline/internal/logging"
	"photoline/internal/metrics"
	"photoline/internal/reconcile"
	"photoline/internal/services/objectstore"
	"photoline/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", logging.Error(err))
		return err
	}
	defer st.Close()

	objects, err := objectstore.New(signalCtx, cfg, objectstore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("object store: %w", err)
	}

	prom := metrics.NewProm()
	svc, err := ingest.NewFromConfig(cfg, st, objects, prom, logger)
	if err != nil {
		return fmt.Errorf("ingest service: %w", err)
	}
	sweeper := reconcile.New(cfg, st, objects, logger, reconcile.WithMetrics(prom))

	d, err := daemon.New(cfg, daemon.Deps{
		Store:   st,
		Objects: objects,
		Ingest:  svc,
		Sweeper: sweeper,
		Metrics: prom,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	return d.Run(signalCtx)
}

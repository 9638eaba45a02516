package ingest

import (
	"fmt"
	"log/slog"

	"photoline/internal/approval"
	"photoline/internal/config"
	"photoline/internal/logging"
	"photoline/internal/media/compress"
	"photoline/internal/media/normalize"
	"photoline/internal/metrics"
	"photoline/internal/objectkey"
	"photoline/internal/services/objectstore"
	"photoline/internal/store"
)

// NormalizePolicy returns the normalizer policy configured in cfg.
func NormalizePolicy(cfg *config.Config) normalize.Policy {
	return normalize.Policy{
		MinWidth:  cfg.Image.MinWidth,
		MinHeight: cfg.Image.MinHeight,
		MaxWidth:  cfg.Image.MaxWidth,
		MaxHeight: cfg.Image.MaxHeight,
		Quality:   cfg.Image.Quality,
		MaxPixels: cfg.Image.MaxPixels,
	}
}

// CompressPolicy returns the compressor policy configured in cfg.
func CompressPolicy(cfg *config.Config) compress.Policy {
	return compress.Policy{
		QualityStep:  cfg.Image.QualityStep,
		QualityFloor: cfg.Image.QualityFloor,
		MinWidth:     cfg.Image.MinWidth,
		MinHeight:    cfg.Image.MinHeight,
		MaxAttempts:  cfg.Image.MaxAttempts,
	}
}

// NewFromConfig wires a Service over st and objects using the configured
// policies.
func NewFromConfig(cfg *config.Config, st *store.Store, objects objectstore.Store, rec metrics.Recorder, logger *slog.Logger, observers ...Observer) (*Service, error) {
	opts, err := OptionsFromConfig(cfg, st, objects, rec, logger, observers...)
	if err != nil {
		return nil, err
	}
	return New(opts)
}

// OptionsFromConfig builds the Options NewFromConfig uses so callers can
// override individual pieces, such as the clock, before calling New.
func OptionsFromConfig(cfg *config.Config, st *store.Store, objects objectstore.Store, rec metrics.Recorder, logger *slog.Logger, observers ...Observer) (Options, error) {
	if cfg == nil || st == nil {
		return Options{}, fmt.Errorf("ingest: config and store are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	normalizer, err := normalize.New(NormalizePolicy(cfg))
	if err != nil {
		return Options{}, err
	}
	compressor, err := compress.New(CompressPolicy(cfg))
	if err != nil {
		return Options{}, err
	}
	gate := approval.New(st, cfg.Approval.CacheSize, cfg.ApprovalTTL(),
		logging.NewComponentLogger(logger, "approval"))

	return Options{
		Gate:           gate,
		Ledger:         st,
		Normalizer:     normalizer,
		Compressor:     compressor,
		Storage:        objects,
		Keys:           objectkey.NewAllocator(objectkey.WithLogger(logger)),
		Metrics:        rec,
		Logger:         logger,
		Observers:      observers,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		BudgetBytes:    cfg.Limits.UploadBudgetBytes,
		AcceptedTypes:  cfg.Storage.AllowedContentTypes,
	}, nil
}

// Package reconcile settles image rows left pending by interrupted uploads.
//
// A row is reserved before its object is uploaded. When the upload outcome is
// unknown (timeout, dropped connection, caller gone) the row stays pending.
// The sweeper checks each stale pending row against the object store and
// either promotes it to stored or marks it abandoned.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/logging"
	"photoline/internal/metrics"
	"photoline/internal/services/objectstore"
	"photoline/internal/store"
)

// Result labels recorded per swept row.
const (
	ResultStored    = "stored"
	ResultAbandoned = "abandoned"
	ResultSkipped   = "skipped"
	ResultError     = "error"
)

// Ledger is the slice of the metadata store the sweeper needs.
type Ledger interface {
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]*store.Image, error)
	CompleteImage(ctx context.Context, id int64, url string) error
	AbandonImage(ctx context.Context, id int64, code string) error
}

// Report summarizes one sweep.
type Report struct {
	Checked   int `json:"checked"`
	Stored    int `json:"stored"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// Sweeper promotes or abandons stale pending rows.
type Sweeper struct {
	ledger   Ledger
	objects  objectstore.Store
	metrics  metrics.Recorder
	logger   *slog.Logger
	grace    time.Duration
	batch    int
	interval time.Duration
	now      func() time.Time
}

// Option customizes a Sweeper.
type Option func(*Sweeper)

// WithClock replaces the sweeper's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics records per-row outcomes on rec.
func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Sweeper) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// New builds a Sweeper configured from cfg.
func New(cfg *config.Config, ledger Ledger, objects objectstore.Store, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Sweeper{
		ledger:   ledger,
		objects:  objects,
		metrics:  metrics.Noop{},
		logger:   logging.NewComponentLogger(logger, "reconcile"),
		grace:    cfg.ReconcileGrace(),
		batch:    cfg.Reconcile.BatchSize,
		interval: cfg.ReconcileInterval(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep settles one batch of pending rows older than the grace period. A row
// whose lookup fails is left pending for the next sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var report Report
	cutoff := s.now().Add(-s.grace)
	rows, err := s.ledger.StalePending(ctx, cutoff, s.batch)
	if err != nil {
		return report, err
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		result := s.settle(ctx, row)
		switch result {
		case ResultStored:
			report.Stored++
		case ResultAbandoned:
			report.Abandoned++
		case ResultSkipped:
			report.Skipped++
		default:
			report.Errors++
		}
		s.metrics.IncReconcile(result)
	}

	if report.Checked > 0 {
		s.logger.Info("reconcile sweep complete",
			logging.String(logging.FieldEventType, "reconcile_complete"),
			logging.Int("checked", report.Checked),
			logging.Int("stored", report.Stored),
			logging.Int("abandoned", report.Abandoned),
			logging.Int("skipped", report.Skipped),
			logging.Int("errors", report.Errors),
		)
	}
	return report, nil
}

func (s *Sweeper) settle(ctx context.Context, row *store.Image) string {
	logger := s.logger.With(
		logging.Int64("image_id", row.ID),
		logging.String(logging.FieldStorageKey, row.StorageKey),
	)

	stat, err := s.objects.Stat(ctx, row.StorageKey)
	if err != nil {
		logging.WarnWithContext(logger, "object lookup failed", "reconcile_lookup_failed",
			logging.String(logging.FieldErrorCode, string(faults.CodeOf(err))),
			logging.String(logging.FieldErrorHint, "check object store reachability"),
			logging.String(logging.FieldImpact, "row stays pending until the next sweep"),
			logging.Error(err),
		)
		return ResultError
	}

	if stat.Exists {
		err = s.ledger.CompleteImage(ctx, row.ID, stat.URL)
	} else {
		err = s.ledger.AbandonImage(ctx, row.ID, string(faults.UploadStorageError))
	}
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotPending), errors.Is(err, store.ErrNotFound):
		// Settled by its own request between the scan and now.
		return ResultSkipped
	default:
		logging.WarnWithContext(logger, "failed to settle pending row", "reconcile_settle_failed",
			logging.String(logging.FieldErrorHint, "check database health"),
			logging.String(logging.FieldImpact, "row stays pending until the next sweep"),
			logging.Error(err),
		)
		return ResultError
	}

	if stat.Exists {
		logger.Info("recovered stored image", logging.String("url", stat.URL))
		return ResultStored
	}
	logger.Info("abandoned image with no stored object")
	return ResultAbandoned
}

// Run sweeps on the configured interval until ctx is done. A failed sweep is
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(s.logger, "reconcile sweep failed", "reconcile_failed",
				logging.String(logging.FieldErrorHint, "check database health"),
				logging.String(logging.FieldImpact, "pending rows wait for the next sweep"),
				logging.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

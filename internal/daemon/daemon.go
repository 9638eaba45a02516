package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"photoline/internal/api"
	"photoline/internal/config"
	"photoline/internal/ingest"
	"photoline/internal/logging"
	"photoline/internal/metrics"
	"photoline/internal/reconcile"
	"photoline/internal/services/objectstore"
	"photoline/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Deps are the collaborators a Daemon serves.
type Deps struct {
	Store   *store.Store
	Objects objectstore.Store
	Ingest  *ingest.Service
	Sweeper *reconcile.Sweeper
	Metrics *metrics.Prom
	Logger  *slog.Logger
}

// Daemon runs the ingest API and the reconcile sweeper as a single instance.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	objects objectstore.Store
	ingest  *ingest.Service
	sweeper *reconcile.Sweeper
	metrics *metrics.Prom
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	addr    string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Objects == nil || deps.Ingest == nil {
		return nil, errors.New("daemon requires config, store, object store, and ingest service")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewProm()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    deps.Store,
		objects:  deps.Objects,
		ingest:   deps.Ingest,
		sweeper:  deps.Sweeper,
		metrics:  deps.Metrics,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Handler returns the HTTP handler serving the API.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Addr returns the address the API is listening on, or "" before Run binds.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Running reports whether Run is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Run acquires the instance lock and serves until ctx is canceled. The API
// server and the reconcile sweeper share one errgroup; either failing stops
// both.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another photoline daemon instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	listener, err := net.Listen("tcp", d.cfg.Paths.APIBind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	d.mu.Lock()
	d.addr = listener.Addr().String()
	d.mu.Unlock()

	if removed := logging.CleanupOldLogs(d.logger, d.cfg.Paths.LogDir, "*.log", d.cfg.LogPath(), d.cfg.Logging.RetentionDays, time.Now()); removed > 0 {
		d.logger.Info("pruned old log files", logging.Int("removed", removed))
	}

	d.running.Store(true)
	defer d.running.Store(false)
	d.logger.Info("photoline daemon started",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
		logging.String("storage_backend", d.objects.Backend()),
		logging.Bool("reconcile", d.reconcileEnabled()),
	)

	server := d.api.newServer()
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("api server shutdown incomplete", logging.Error(err))
		}
		return nil
	})
	if d.reconcileEnabled() {
		group.Go(func() error {
			return d.sweeper.Run(gctx)
		})
	}

	err = group.Wait()
	d.logger.Info("photoline daemon stopped")
	return err
}

func (d *Daemon) reconcileEnabled() bool {
	return d.sweeper != nil && d.cfg.Reconcile.Enabled
}

// Status returns the current daemon status. Store failures are reported in
// the payload rather than as an error.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		DatabasePath:   d.store.Path(),
		LockFilePath:   d.lockPath,
		StorageBackend: d.objects.Backend(),
		Images:         api.StatusCounts(nil),
		Reconcile:      d.reconcileEnabled(),
	}
	if err := d.store.Ping(ctx); err != nil {
		status.DatabaseError = err.Error()
		return status
	}
	status.DatabaseOK = true
	if version, err := d.store.SchemaVersion(ctx); err == nil {
		status.SchemaVersion = version
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		status.DatabaseError = err.Error()
		return status
	}
	status.Users = stats.Users
	status.ApprovedUsers = stats.ApprovedUsers
	status.Images = api.StatusCounts(stats.Images)
	status.StoredBytes = stats.StoredBytes
	return status
}

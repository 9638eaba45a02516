package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"photoline/internal/config"
	"photoline/internal/faults"
	"photoline/internal/logging"
)

// stage is the pipeline stage name recorded on transport errors.
const stage = "uploading"

// CacheControl is the header stored objects are served with. Keys are never
// reused so objects can be cached forever.
const CacheControl = "public, max-age=31536000, immutable"

// Result describes a stored object.
type Result struct {
	URL string
	Key string
}

// StatResult reports whether an object exists.
type StatResult struct {
	Exists      bool
	URL         string
	Size        int64
	ContentType string
}

// Progress is a monotonic upload progress event.
type Progress struct {
	Sent  int64
	Total int64
}

// Percent returns Sent as a percentage of Total.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Sent) * 100 / float64(p.Total)
}

// ProgressFunc receives progress events. It may be nil.
type ProgressFunc func(Progress)

// Store uploads and looks up immutable objects.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string, progress ProgressFunc) (Result, error)
	Stat(ctx context.Context, key string) (StatResult, error)
	Backend() string
}

// Boundary is the admission check shared by every backend.
type Boundary struct {
	AllowedContentTypes []string
	MaxBytes            int64
}

// NewBoundary builds a Boundary from the configured allow-list and ceiling.
func NewBoundary(cfg *config.Config) Boundary {
	return Boundary{
		AllowedContentTypes: append([]string(nil), cfg.Storage.AllowedContentTypes...),
		MaxBytes:            cfg.Limits.MaxUploadBytes,
	}
}

// Check validates an object before any I/O happens.
func (b Boundary) Check(contentType string, size int64) error {
	mediaType := NormalizeContentType(contentType)
	if mediaType == "" || !slices.Contains(b.AllowedContentTypes, mediaType) {
		return faults.Wrap(faults.StorageContentType, stage, "check content type",
			fmt.Sprintf("content type %q is not accepted", contentType), nil)
	}
	if b.MaxBytes > 0 && size > b.MaxBytes {
		return faults.Wrap(faults.StorageTooLarge, stage, "check size",
			fmt.Sprintf("%d bytes exceeds limit of %d", size, b.MaxBytes), nil)
	}
	return nil
}

// NormalizeContentType lower-cases a media type and strips parameters.
func NormalizeContentType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}

// Option customizes a backend built by New.
type Option func(*options)

type options struct {
	logger *slog.Logger
	client HTTPDoer
}

// WithLogger attaches a logger to the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client used by either backend.
func WithHTTPClient(client HTTPDoer) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// New returns the backend selected by storage.backend.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("objectstore: config is required")
	}
	if err := cfg.ValidateStorage(); err != nil {
		return nil, fmt.Errorf("objectstore: %w", err)
	}
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(logging.String(logging.FieldComponent, "objectstore"))

	switch cfg.Storage.Backend {
	case config.BackendS3:
		return newS3Store(ctx, cfg, o)
	default:
		return newHTTPStore(cfg, o), nil
	}
}

// classifyTransport maps a failed round trip onto a registry code. parent is
// the caller's context, so its cancellation is told apart from the transport
// deadline.
func classifyTransport(parent context.Context, operation string, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return faults.Wrap(faults.RequestCanceled, stage, operation, "canceled by caller", err)
	case isTimeout(err):
		return faults.Wrap(faults.StorageTimeout, stage, operation, "storage did not answer in time", err)
	default:
		return faults.Wrap(faults.StorageUnavailable, stage, operation, "storage unreachable", err)
	}
}

// classifyStatus maps a non-2xx status onto a registry code.
func classifyStatus(operation string, status int, body string) error {
	msg := fmt.Sprintf("status %d", status)
	if body = strings.TrimSpace(body); body != "" {
		msg += ": " + body
	}
	return faults.Wrap(classifyStatusCode(status), stage, operation, msg, nil)
}

// classifyStatusCode treats 5xx and 429 as an unavailable store and every
// other failure status as a rejection.
func classifyStatusCode(status int) faults.Code {
	if status >= 500 || status == http.StatusTooManyRequests {
		return faults.StorageUnavailable
	}
	return faults.StorageRejected
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return false
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

package testsupport

import (
	"path/filepath"
	"strings"
	"testing"

	"photoline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Image limits are shrunk so fixtures stay small.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Database.Path = filepath.Join(base, "data", "photoline.db")
	cfgVal.Storage.BaseURL = "http://127.0.0.1:0"
	cfgVal.Image.MinWidth = 64
	cfgVal.Image.MinHeight = 48
	cfgVal.Image.MaxWidth = 256
	cfgVal.Image.MaxHeight = 192
	cfgVal.Approval.CacheTTLSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStorageURL points the http storage backend at url.
func WithStorageURL(url, token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Backend = config.BackendHTTP
		b.cfg.Storage.BaseURL = url
		b.cfg.Storage.Token = token
	}
}

// WithS3Endpoint selects the s3 backend against a path-style endpoint.
func WithS3Endpoint(endpoint, bucket string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Backend = config.BackendS3
		b.cfg.Storage.Endpoint = endpoint
		b.cfg.Storage.Bucket = bucket
		b.cfg.Storage.Region = "us-east-1"
		b.cfg.Storage.AccessKeyID = "test"
		b.cfg.Storage.SecretAccessKey = "test"
		b.cfg.Storage.UsePathStyle = true
		b.cfg.Storage.PublicBaseURL = strings.TrimRight(endpoint, "/") + "/" + bucket
	}
}

// WithAPIToken sets the bearer token required by the daemon API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithImageLimits overrides the resolution floor and ceiling.
func WithImageLimits(minW, minH, maxW, maxH int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Image.MinWidth = minW
		b.cfg.Image.MinHeight = minH
		b.cfg.Image.MaxWidth = maxW
		b.cfg.Image.MaxHeight = maxH
	}
}

// WithUploadLimits overrides the upload ceiling and compression budget.
func WithUploadLimits(maxBytes, budget int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Limits.MaxUploadBytes = maxBytes
		b.cfg.Limits.UploadBudgetBytes = budget
	}
}

// WithApprovalCache enables the approval lookup cache.
func WithApprovalCache(size, ttlSeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Approval.CacheSize = size
		b.cfg.Approval.CacheTTLSeconds = ttlSeconds
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

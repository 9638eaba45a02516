package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Storage selects and configures the object store.
type Storage struct {
	Backend             string   `toml:"backend"`
	BaseURL             string   `toml:"base_url"`
	Token               string   `toml:"token"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	AllowedContentTypes []string `toml:"allowed_content_types"`

	// S3 settings, used when Backend is "s3".
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	PublicBaseURL   string `toml:"public_base_url"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// Limits holds the byte ceilings applied to uploads.
type Limits struct {
	// MaxUploadBytes is the single ceiling enforced on the HTTP body, the
	// submission and the object store boundary.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
	// UploadBudgetBytes is the size the compressor aims for.
	UploadBudgetBytes int64 `toml:"upload_budget_bytes"`
}

// Image holds the normalization and compression policy.
type Image struct {
	MinWidth     int `toml:"min_width"`
	MinHeight    int `toml:"min_height"`
	MaxWidth     int `toml:"max_width"`
	MaxHeight    int `toml:"max_height"`
	Quality      int `toml:"quality"`
	QualityStep  int `toml:"quality_step"`
	QualityFloor int `toml:"quality_floor"`
	MaxAttempts  int `toml:"max_attempts"`

	// MaxPixels rejects uploads whose header declares more pixels before
	// they are decoded.
	MaxPixels int64 `toml:"max_pixels"`
}

// Database configures the sqlite metadata store.
type Database struct {
	Path           string `toml:"path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Approval configures the approval lookup cache. A TTL of 0 disables caching.
type Approval struct {
	CacheSize       int `toml:"cache_size"`
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// Reconcile configures the sweep that settles pending image rows.
type Reconcile struct {
	Enabled         bool `toml:"enabled"`
	IntervalSeconds int  `toml:"interval_seconds"`
	GraceSeconds    int  `toml:"grace_seconds"`
	BatchSize       int  `toml:"batch_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for photoline.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories plus the API bind address
//   - Storage: object store backend (http worker or s3)
//   - Limits: upload ceiling and compression budget
//   - Image: resolution floor/ceiling and JPEG quality search
//   - Database: sqlite location and operation timeout
//   - Approval: approval lookup cache
//   - Reconcile: pending-row sweeper
//   - Logging: log format, level, and retention
type Config struct {
	Paths     Paths     `toml:"paths"`
	Storage   Storage   `toml:"storage"`
	Limits    Limits    `toml:"limits"`
	Image     Image     `toml:"image"`
	Database  Database  `toml:"database"`
	Approval  Approval  `toml:"approval"`
	Reconcile Reconcile `toml:"reconcile"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, filepath.Dir(c.Database.Path)}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the single-instance lock file for the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "photoline.lock")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "photoline.log")
}

// StorageTimeout bounds a single object store call.
func (c *Config) StorageTimeout() time.Duration {
	return time.Duration(c.Storage.TimeoutSeconds) * time.Second
}

// DatabaseTimeout bounds a single metadata store call.
func (c *Config) DatabaseTimeout() time.Duration {
	return time.Duration(c.Database.TimeoutSeconds) * time.Second
}

// ApprovalTTL is how long approval lookups are cached.
func (c *Config) ApprovalTTL() time.Duration {
	return time.Duration(c.Approval.CacheTTLSeconds) * time.Second
}

// ReconcileInterval is the delay between sweeps.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}

// ReconcileGrace is how old a pending row must be before the sweep checks it.
func (c *Config) ReconcileGrace() time.Duration {
	return time.Duration(c.Reconcile.GraceSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

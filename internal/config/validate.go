package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. Storage credentials are
// checked separately by ValidateStorage so commands that never touch the
// object store can run without them.
func (c *Config) Validate() error {
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateImage(); err != nil {
		return err
	}
	if err := c.validateStorageShape(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateApproval(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateLimits() error {
	if c.Limits.MaxUploadBytes <= 0 {
		return errors.New("limits.max_upload_bytes must be positive")
	}
	if c.Limits.UploadBudgetBytes <= 0 {
		return errors.New("limits.upload_budget_bytes must be positive")
	}
	if c.Limits.UploadBudgetBytes > c.Limits.MaxUploadBytes {
		return fmt.Errorf("limits.upload_budget_bytes (%d) must not exceed limits.max_upload_bytes (%d)",
			c.Limits.UploadBudgetBytes, c.Limits.MaxUploadBytes)
	}
	return nil
}

func (c *Config) validateImage() error {
	img := c.Image
	if img.MinWidth <= 0 || img.MinHeight <= 0 {
		return errors.New("image.min_width and image.min_height must be positive")
	}
	if img.MaxWidth < img.MinWidth {
		return errors.New("image.max_width must be at least image.min_width")
	}
	if img.MaxHeight < img.MinHeight {
		return errors.New("image.max_height must be at least image.min_height")
	}
	if img.Quality < 1 || img.Quality > 100 {
		return errors.New("image.quality must be between 1 and 100")
	}
	if img.QualityFloor < 1 || img.QualityFloor > img.Quality {
		return errors.New("image.quality_floor must be between 1 and image.quality")
	}
	if img.QualityStep <= 0 {
		return errors.New("image.quality_step must be positive")
	}
	if img.MaxAttempts <= 0 {
		return errors.New("image.max_attempts must be positive")
	}
	if img.MaxPixels < int64(img.MinWidth)*int64(img.MinHeight) {
		return errors.New("image.max_pixels must admit at least image.min_width x image.min_height")
	}
	return nil
}

func (c *Config) validateStorageShape() error {
	switch c.Storage.Backend {
	case BackendHTTP, BackendS3:
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (want %q or %q)", c.Storage.Backend, BackendHTTP, BackendS3)
	}
	if c.Storage.TimeoutSeconds <= 0 {
		return errors.New("storage.timeout_seconds must be positive")
	}
	for _, value := range c.Storage.AllowedContentTypes {
		if !strings.HasPrefix(value, "image/") {
			return fmt.Errorf("storage.allowed_content_types: %q is not an image type", value)
		}
	}
	return nil
}

// ValidateStorage checks the settings the selected backend needs to upload.
func (c *Config) ValidateStorage() error {
	switch c.Storage.Backend {
	case BackendHTTP:
		if c.Storage.BaseURL == "" {
			return errors.New("storage.base_url is required for the http backend (or set PHOTOLINE_STORAGE_URL)")
		}
		if err := validateURL(c.Storage.BaseURL); err != nil {
			return fmt.Errorf("storage.base_url: %w", err)
		}
	case BackendS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket is required for the s3 backend")
		}
		if c.Storage.Region == "" {
			return errors.New("storage.region is required for the s3 backend")
		}
		if c.Storage.PublicBaseURL == "" {
			return errors.New("storage.public_base_url is required for the s3 backend")
		}
		if err := validateURL(c.Storage.PublicBaseURL); err != nil {
			return fmt.Errorf("storage.public_base_url: %w", err)
		}
		if c.Storage.Endpoint != "" {
			if err := validateURL(c.Storage.Endpoint); err != nil {
				return fmt.Errorf("storage.endpoint: %w", err)
			}
		}
		if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
			return errors.New("storage.access_key_id and storage.secret_access_key must be set together")
		}
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.TimeoutSeconds <= 0 {
		return errors.New("database.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateApproval() error {
	if c.Approval.CacheTTLSeconds < 0 {
		return errors.New("approval.cache_ttl_seconds must be >= 0")
	}
	if c.Approval.CacheTTLSeconds > 0 && c.Approval.CacheSize <= 0 {
		return errors.New("approval.cache_size must be positive when caching is enabled")
	}
	return nil
}

func (c *Config) validateReconcile() error {
	if !c.Reconcile.Enabled {
		return nil
	}
	if c.Reconcile.IntervalSeconds <= 0 {
		return errors.New("reconcile.interval_seconds must be positive")
	}
	if c.Reconcile.GraceSeconds < c.Storage.TimeoutSeconds {
		return fmt.Errorf("reconcile.grace_seconds must be at least storage.timeout_seconds (%d)", c.Storage.TimeoutSeconds)
	}
	if c.Reconcile.BatchSize <= 0 {
		return errors.New("reconcile.batch_size must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}

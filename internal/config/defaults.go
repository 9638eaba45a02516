package config

const (
	defaultConfigPath       = "~/.config/photoline/config.toml"
	projectConfigName       = "photoline.toml"
	defaultDataDir          = "~/.local/share/photoline"
	defaultLogDir           = "~/.local/share/photoline/logs"
	defaultAPIBind          = "127.0.0.1:7390"
	defaultDBFile           = "photoline.db"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30

	defaultStorageBackend = BackendHTTP
	defaultStorageTimeout = 60

	defaultMaxUploadBytes    = 10 << 20
	defaultUploadBudgetBytes = 4 << 20

	defaultMinWidth     = 1920
	defaultMinHeight    = 1080
	defaultMaxWidth     = 3840
	defaultMaxHeight    = 2160
	defaultQuality      = 95
	defaultQualityStep  = 10
	defaultQualityFloor = 50
	defaultMaxAttempts  = 100
	defaultMaxPixels    = 100_000_000

	defaultDBTimeout = 10

	defaultApprovalCacheSize = 1024
	defaultApprovalCacheTTL  = 30

	defaultReconcileInterval = 300
	defaultReconcileGrace    = 900
	defaultReconcileBatch    = 50
)

// Storage backends.
const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

// defaultContentTypes is the image allow-list shared by the submission check
// and the object store boundary.
var defaultContentTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Storage: Storage{
			Backend:             defaultStorageBackend,
			TimeoutSeconds:      defaultStorageTimeout,
			AllowedContentTypes: append([]string(nil), defaultContentTypes...),
		},
		Limits: Limits{
			MaxUploadBytes:    defaultMaxUploadBytes,
			UploadBudgetBytes: defaultUploadBudgetBytes,
		},
		Image: Image{
			MinWidth:     defaultMinWidth,
			MinHeight:    defaultMinHeight,
			MaxWidth:     defaultMaxWidth,
			MaxHeight:    defaultMaxHeight,
			Quality:      defaultQuality,
			QualityStep:  defaultQualityStep,
			QualityFloor: defaultQualityFloor,
			MaxAttempts:  defaultMaxAttempts,
			MaxPixels:    defaultMaxPixels,
		},
		Database: Database{
			TimeoutSeconds: defaultDBTimeout,
		},
		Approval: Approval{
			CacheSize:       defaultApprovalCacheSize,
			CacheTTLSeconds: defaultApprovalCacheTTL,
		},
		Reconcile: Reconcile{
			Enabled:         true,
			IntervalSeconds: defaultReconcileInterval,
			GraceSeconds:    defaultReconcileGrace,
			BatchSize:       defaultReconcileBatch,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

package services

import "context"

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	stageKey      contextKey = "stage"
	userIDKey     contextKey = "user_id"
	storageKeyKey contextKey = "storage_key"
)

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithUserID annotates context with the internal user id of the uploader.
func WithUserID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the uploader's user id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, userIDKey)
}

// WithStorageKey annotates context with the allocated object key.
func WithStorageKey(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, storageKeyKey, key)
}

// StorageKeyFromContext returns the object key if present.
func StorageKeyFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, storageKeyKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

package logging

import (
	"context"
	"log/slog"

	"photoline/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRequestID is the standardized key for request correlation identifiers.
	FieldRequestID = "request_id"
	// FieldStage is the standardized key for pipeline stage names.
	FieldStage = "stage"
	// FieldUserID is the standardized key for the uploader's user id.
	FieldUserID = "user_id"
	// FieldStorageKey is the standardized key for object keys.
	FieldStorageKey = "storage_key"
	// FieldErrorCode carries the registry code of a failure.
	FieldErrorCode = "error_code"
	// FieldEventType names the kind of event for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells an operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRequestID, rid))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if id, ok := services.UserIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldUserID, id))
	}
	if key, ok := services.StorageKeyFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStorageKey, key))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

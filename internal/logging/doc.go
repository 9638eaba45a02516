// Package logging assembles structured slog loggers and formatting helpers used
// across photoline.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with request ids, stages, user ids and storage keys. It also provides
// a no-op logger for tests, a progress sampler for upload progress, and log
// file retention.
package logging

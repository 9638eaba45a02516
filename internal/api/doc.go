// Package api defines wire-format types, converters and the HTTP client for
// the daemon API. It translates store models into transport-friendly DTOs so
// the CLI and the web tier can render them without coupling to internal
// types.
//
// # Key Types
//
// ImageItem: transport representation of an image row.
//
// UserItem: transport representation of a member record.
//
// DaemonStatus: daemon running state, store counts, and storage backend.
//
// UploadResponse: the success shape of POST /api/images.
//
// # Client
//
// Client talks to a running daemon. Transport failures map onto the
// CLIENT-* registry codes; failure bodies returned by the daemon are decoded
// back into *faults.Error values carrying the server's code and URL.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers.
// Timestamps use RFC3339 with milliseconds.
package api

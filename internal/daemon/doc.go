// Package daemon coordinates the long-running photoline process.
//
// It wires configuration, the metadata store, the object store, the ingest
// pipeline, and the reconcile sweeper into a single lifecycle with
// flock-based locking to prevent multiple instances. The HTTP API accepts
// image submissions from the web tier, lists a member's images, serves the
// error catalogue and status, drops cached approval decisions on request, and
// exposes Prometheus metrics.
//
// Keep orchestration logic here: pipeline steps live in ingest while the
// daemon focuses on startup, shutdown, and request plumbing.
package daemon

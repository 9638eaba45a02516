// Package faults holds the stable error-code registry for the ingestion
// pipeline and the Error type every stage returns.
//
// Codes follow DOMAIN-SUBSYSTEM-NNN and are never reused for a different
// meaning. The registry is built once at package initialization and is
// read-only afterwards, so it can be shared across goroutines without
// locking. Stages wrap lower-level failures with New so callers can map any
// error back to a registry entry with From or Response.
package faults

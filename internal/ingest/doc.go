// Package ingest runs one image submission through the pipeline:
// authorization, request validation, normalization, compression, upload and
// persistence.
//
// Stages run strictly in sequence and every state transition is reported to
// the configured observers (structured logs, Prometheus, and any Observer
// passed in Options). A pending image row is reserved before the upload so a
// crash between storing the object and recording its URL leaves a row the
// reconcile sweep can settle.
//
// No stage is retried. Failures surface as *faults.Error values whose codes
// map directly onto the HTTP failure body.
package ingest

// Package store persists photoline users and image records in SQLite.
//
// Images are written in two steps. ReserveImage records a pending row before
// the object is uploaded and CompleteImage promotes it to stored with the
// public URL. Rows left pending by a crash or a failed update are settled by
// the reconcile sweep through StalePending, CompleteImage and AbandonImage.
//
// Open applies pragmas for WAL mode, foreign keys and a busy timeout, then
// runs the embedded migrations. Writes wait out lock contention with a short
// exponential backoff.
package store

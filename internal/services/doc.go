// Package services defines shared utilities consumed by the ingestion stages
// and external integrations.
//
// The context helpers stamp request ids, stage names, user ids and storage
// keys so logging can tag every line of a request. Integrations with external
// systems live in subpackages (objectstore).
package services

// Package main hosts the photoline CLI entrypoint and command graph.
//
// The Cobra command tree covers running the daemon (serve), talking to it over
// HTTP (status, upload), and working against the local store directly (users,
// images, ingest, reconcile). Configuration resolution, store opening and
// logger setup live in commandContext so subcommands stay declarative.
//
// Add behavior to the internal packages first, then surface it here.
package main

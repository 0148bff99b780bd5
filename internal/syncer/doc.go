// Package syncer drives the end-to-end synchronization pipeline.
//
// For every logical resource the orchestrator resolves the master page and
// its targets, reconciles each target against the master's revision history,
// and decides per target: up to date, needs update, unrecognized divergence,
// or blocked on missing dependencies.
//
// The run is strictly sequential. History fetching is the only suspension
// point: the reconciler holds a lazy cursor and looks further back only when
// the newer revisions did not explain the target's content. A deliberate
// pacing delay separates successive publishes; it is advisory throttling
// and is skipped in dry-run mode.
package syncer

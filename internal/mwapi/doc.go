// Package mwapi is the MediaWiki action API client.
//
// One Client exists per distinct site and is reused for every page on that
// site; a SiteCache hands out memoized clients sharing one HTTP connection
// pool. Idempotent reads are retried with bounded exponential backoff on
// 429 and 5xx responses; edits are never retried (a failed publish must not
// be assumed to have partially succeeded).
//
// The run is single-threaded, so per-client memoization (magic words,
// flagged-revisions probe, edit token) is unsynchronized on purpose.
package mwapi

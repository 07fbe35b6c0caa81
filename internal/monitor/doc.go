// Package monitor implements the three data-collection stages of a cycle.
//
// Each stage fetches from its feed with a bounded timeout, normalizes the
// records, tags per-record significance, and returns a Delta for the state
// store. Stages never merge state themselves and never let an adapter
// error escape unclassified; a failed stage returns a typed error for the
// recovery coordinator and the loop keeps running.
//
// The news stage is scheduled every Nth cycle and reports success as a
// no-op on the others.
package monitor

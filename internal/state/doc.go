// Package state owns the unified mutable state of the monitoring loop.
//
// The Store is the ONLY component allowed to mutate UnifiedState. All other
// components receive value snapshots and submit Deltas, which are merged
// under a single mutex with a cycle-number guard:
//
//   - A Delta stamped with any cycle other than the current one is rejected
//     with StaleWriteError. This catches a stage that suspended across a
//     cycle boundary and came back with stale assumptions.
//   - Merges are serialized in submission order. Appends (market, news,
//     error log) commute; social mentions are set-unioned by source id;
//     patterns are upserted by pattern id.
//   - Candidate status transitions are forward-only: pending is the unique
//     source of the transition DAG, and posted/rejected/failed are terminal.
//
// Checkpoints serialize the full UnifiedState at a cycle boundary. Restoring
// a checkpoint and replaying the same feed responses must produce the
// identical trajectory, so everything that influences control flow lives in
// UnifiedState and nothing here touches wall-clock time.
package state

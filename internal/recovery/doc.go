// Package recovery is the central failure sink of the loop.
//
// Stages never translate their own errors into control flow. Every failure
// is handed to the Coordinator, which classifies it, appends exactly one
// ErrorRecord, and answers with a RecoveryAction the orchestrator obeys:
//
//	transient / rate-limited  -> RetryNextCycle with exponential backoff,
//	                             capped by a rolling retry budget
//	validation / stale write  -> Skip (stage output discarded this cycle)
//	budget exhausted          -> Skip, recorded distinctly; the stage stays
//	                             parked until the rolling window clears
//	auth / config             -> Halt (operator restart required)
//
// The decision logic is a pure function of (kind, failure history) so the
// policy is testable without any I/O.
package recovery

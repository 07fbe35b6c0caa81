package state

// Delta is a stage's proposed mutation of UnifiedState.
//
// Every Delta is stamped with the stage that produced it and the cycle it
// was computed against. The Store rejects cross-cycle deltas, so a stage
// can never commit results derived from a snapshot of a different cycle.
//
// Field semantics on merge:
//   - Market, News: prepended (most-recent-first order preserved)
//   - Social: set-union by mention ID, first write wins
//   - Patterns: keyed upsert; ReplacePatterns swaps the whole map, which is
//     how the analyzer drops patterns that were not re-detected
//   - Candidates: appended in order (FIFO queue)
//   - StatusChanges: forward-only transitions by candidate ID
//   - Errors, Publishes: appended
//   - Markers: per-feed cursor overwrite
type Delta struct {
	Stage string
	Cycle int64

	Market          []MarketRecord
	Social          []SocialMention
	News            []NewsEvent
	Patterns        []Pattern
	ReplacePatterns bool
	Candidates      []PostCandidate
	StatusChanges   map[string]CandidateStatus
	Errors          []ErrorRecord
	Publishes       []PublishOutcome
	Markers         map[string]string
}

// NewDelta returns an empty delta for the given stage and cycle.
func NewDelta(stage string, cycle int64) Delta {
	return Delta{Stage: stage, Cycle: cycle}
}

// Empty reports whether the delta carries no mutations.
func (d *Delta) Empty() bool {
	return len(d.Market) == 0 &&
		len(d.Social) == 0 &&
		len(d.News) == 0 &&
		len(d.Patterns) == 0 &&
		!d.ReplacePatterns &&
		len(d.Candidates) == 0 &&
		len(d.StatusChanges) == 0 &&
		len(d.Errors) == 0 &&
		len(d.Publishes) == 0 &&
		len(d.Markers) == 0
}

// SetStatus records a candidate status change on the delta.
func (d *Delta) SetStatus(candidateID string, status CandidateStatus) {
	if d.StatusChanges == nil {
		d.StatusChanges = make(map[string]CandidateStatus)
	}
	d.StatusChanges[candidateID] = status
}

// SetMarker records a feed cursor on the delta.
func (d *Delta) SetMarker(feed, marker string) {
	if d.Markers == nil {
		d.Markers = make(map[string]string)
	}
	d.Markers[feed] = marker
}

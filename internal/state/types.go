package state

import "time"

// MarketRecord is one normalized price/volume observation.
// Market data is kept most-recent-first and bounded by the Store.
type MarketRecord struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	Volume      float64   `json:"volume"`
	PctChange   float64   `json:"pct_change"` // percent move vs. previous record for the symbol
	Significant bool      `json:"significant"`
	Timestamp   time.Time `json:"timestamp"`
	Cycle       int64     `json:"cycle"`
}

// SocialMention is one normalized mention record.
// Mentions are deduplicated by the source-assigned ID.
type SocialMention struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Content     string    `json:"content"`
	Engagement  int       `json:"engagement"`
	Significant bool      `json:"significant"`
	Timestamp   time.Time `json:"timestamp"`
	Cycle       int64     `json:"cycle"`
}

// NewsEvent is one normalized news item.
type NewsEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	Significant bool      `json:"significant"`
	Timestamp   time.Time `json:"timestamp"`
	Cycle       int64     `json:"cycle"`
}

// PatternKind tags the detection that produced a pattern.
type PatternKind string

const (
	PatternTrend       PatternKind = "trend"
	PatternCorrelation PatternKind = "correlation"
	PatternAnomaly     PatternKind = "anomaly"
)

// Pattern is an immutable detection result. A re-detected pattern replaces
// the previous record under the same ID; it is never mutated in place.
type Pattern struct {
	ID          string      `json:"id"`
	Kind        PatternKind `json:"kind"`
	Symbol      string      `json:"symbol"`
	Score       float64     `json:"score"` // significance in [0,1]
	Sources     []string    `json:"sources"`
	WindowStart time.Time   `json:"window_start"`
	WindowEnd   time.Time   `json:"window_end"`
	Cycle       int64       `json:"cycle"` // cycle of (re-)detection
}

// CandidateStatus is the publication status of a PostCandidate.
type CandidateStatus string

const (
	StatusPending  CandidateStatus = "pending"
	StatusPosted   CandidateStatus = "posted"
	StatusRejected CandidateStatus = "rejected"
	StatusFailed   CandidateStatus = "failed"
)

// validTransitions is the candidate status DAG. pending is the unique
// source; all other statuses are terminal.
var validTransitions = map[CandidateStatus]map[CandidateStatus]bool{
	StatusPending: {
		StatusPosted:   true,
		StatusRejected: true,
		StatusFailed:   true,
	},
}

// CanTransition reports whether from -> to is a legal status transition.
// A no-op transition (from == to) is legal and ignored by the Store.
func CanTransition(from, to CandidateStatus) bool {
	if from == to {
		return true
	}
	return validTransitions[from][to]
}

// PostCandidate is generated narrative text awaiting publication.
type PostCandidate struct {
	ID         string          `json:"id"`
	PatternID  string          `json:"pattern_id"`
	Text       string          `json:"text"`
	Confidence float64         `json:"confidence"` // [0,1]
	Status     CandidateStatus `json:"status"`
	Cycle      int64           `json:"cycle"` // creation cycle
}

// ErrorRecord is one entry in the append-only error log.
// Only the recovery coordinator creates these.
type ErrorRecord struct {
	Stage     string    `json:"stage"`
	Cycle     int64     `json:"cycle"`
	Kind      string    `json:"kind"`
	Retries   int       `json:"retries"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishOutcome is one entry in the append-only publish history.
type PublishOutcome struct {
	CandidateID string    `json:"candidate_id"`
	PostID      string    `json:"post_id"`
	ContentHash string    `json:"content_hash"` // hash of NFC-normalized text
	Cycle       int64     `json:"cycle"`
	Timestamp   time.Time `json:"timestamp"`
}

// UnifiedState is the single process-wide aggregate, versioned by Cycle.
//
// Market and News are ordered most-recent-first. Social is a set keyed by
// mention ID. Candidates are FIFO by creation. Markers holds per-feed
// "since" cursors so a restored checkpoint resumes fetching where it
// stopped.
type UnifiedState struct {
	Cycle          int64                    `json:"cycle"`
	Market         []MarketRecord           `json:"market"`
	Social         map[string]SocialMention `json:"social"`
	News           []NewsEvent              `json:"news"`
	Patterns       map[string]Pattern       `json:"patterns"`
	Candidates     []PostCandidate          `json:"candidates"`
	ErrorLog       []ErrorRecord            `json:"error_log"`
	PublishHistory []PublishOutcome         `json:"publish_history"`
	Markers        map[string]string        `json:"markers"`
}

// NewUnifiedState returns an empty state at cycle 0.
func NewUnifiedState() UnifiedState {
	return UnifiedState{
		Social:   make(map[string]SocialMention),
		Patterns: make(map[string]Pattern),
		Markers:  make(map[string]string),
	}
}

// Pending returns the pending candidates in FIFO order.
func (s *UnifiedState) Pending() []PostCandidate {
	var out []PostCandidate
	for _, c := range s.Candidates {
		if c.Status == StatusPending {
			out = append(out, c)
		}
	}
	return out
}

// Candidate returns the candidate with the given ID, if present.
func (s *UnifiedState) Candidate(id string) (PostCandidate, bool) {
	for _, c := range s.Candidates {
		if c.ID == id {
			return c, true
		}
	}
	return PostCandidate{}, false
}

// HasLiveCandidate reports whether a pattern already has a candidate that is
// pending or posted. Such patterns must not trigger another generation call.
func (s *UnifiedState) HasLiveCandidate(patternID string) bool {
	for _, c := range s.Candidates {
		if c.PatternID == patternID && (c.Status == StatusPending || c.Status == StatusPosted) {
			return true
		}
	}
	return false
}

// Published reports whether a content hash already appears in the publish
// history. Used by the publisher for duplicate suppression.
func (s *UnifiedState) Published(contentHash string) bool {
	for _, p := range s.PublishHistory {
		if p.ContentHash == contentHash {
			return true
		}
	}
	return false
}

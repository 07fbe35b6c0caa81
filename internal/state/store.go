package state

import (
	"errors"
	"fmt"
	"sync"
)

// Bounds applied by the Store. Market and news windows only need to cover
// the analyzer's lookback; the error log is capped so a flapping feed
// cannot grow state without bound.
const (
	DefaultMaxMarket   = 500
	DefaultMaxNews     = 200
	DefaultMaxErrorLog = 1000
)

// StaleWriteError reports a delta stamped with a cycle number other than
// the store's current cycle. It is always fatal to the submitting stage's
// output for the cycle; the stage gets a fresh snapshot next cycle.
type StaleWriteError struct {
	Stage        string
	DeltaCycle   int64
	CurrentCycle int64
}

func (e *StaleWriteError) Error() string {
	return fmt.Sprintf("stale write from stage %s: delta cycle %d, current cycle %d",
		e.Stage, e.DeltaCycle, e.CurrentCycle)
}

// IsStaleWrite reports whether err is a StaleWriteError.
// Uses errors.As to handle wrapped errors.
func IsStaleWrite(err error) bool {
	var se *StaleWriteError
	return errors.As(err, &se)
}

// Store is the exclusive owner of UnifiedState.
//
// All mutation goes through ApplyDelta under a single mutex; readers get
// deep-copied snapshots and can never observe a partial merge. The mutex is
// held only for the in-memory merge, never across an external call.
type Store struct {
	mu          sync.Mutex
	state       UnifiedState
	maxMarket   int
	maxNews     int
	maxErrorLog int
}

// NewStore creates a Store with an empty state at cycle 0.
func NewStore() *Store {
	return &Store{
		state:       NewUnifiedState(),
		maxMarket:   DefaultMaxMarket,
		maxNews:     DefaultMaxNews,
		maxErrorLog: DefaultMaxErrorLog,
	}
}

// NewStoreFrom creates a Store resuming from a restored state.
func NewStoreFrom(s UnifiedState) *Store {
	st := NewStore()
	if s.Social == nil {
		s.Social = make(map[string]SocialMention)
	}
	if s.Patterns == nil {
		s.Patterns = make(map[string]Pattern)
	}
	if s.Markers == nil {
		s.Markers = make(map[string]string)
	}
	st.state = s
	return st
}

// BeginCycle advances the cycle counter by exactly one and returns the new
// cycle number. Called once per cycle by the orchestrator, never by stages.
func (s *Store) BeginCycle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Cycle++
	return s.state.Cycle
}

// Cycle returns the current cycle number.
func (s *Store) Cycle() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Cycle
}

// Snapshot returns a deep copy of the current state. Mutating the returned
// value has no effect on the store.
func (s *Store) Snapshot() UnifiedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// ApplyDelta merges a stage's delta into the state.
//
// Returns StaleWriteError if the delta's cycle does not match the current
// cycle, or a transition error if the delta attempts an illegal candidate
// status change. On error the state is left untouched.
func (s *Store) ApplyDelta(d Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Cycle != s.state.Cycle {
		return &StaleWriteError{Stage: d.Stage, DeltaCycle: d.Cycle, CurrentCycle: s.state.Cycle}
	}

	// Validate status changes before mutating anything.
	for id, to := range d.StatusChanges {
		c, ok := s.state.candidateRef(id)
		if !ok {
			return fmt.Errorf("stage %s: status change for unknown candidate %s", d.Stage, id)
		}
		if !CanTransition(c.Status, to) {
			return fmt.Errorf("stage %s: illegal candidate transition %s -> %s for %s",
				d.Stage, c.Status, to, id)
		}
	}

	// Prepend keeps most-recent-first ordering.
	if len(d.Market) > 0 {
		s.state.Market = prependMarket(s.state.Market, d.Market, s.maxMarket)
	}
	if len(d.News) > 0 {
		s.state.News = prependNews(s.state.News, d.News, s.maxNews)
	}
	for _, m := range d.Social {
		if _, seen := s.state.Social[m.ID]; !seen {
			s.state.Social[m.ID] = m
		}
	}

	if d.ReplacePatterns {
		s.state.Patterns = make(map[string]Pattern, len(d.Patterns))
	}
	for _, p := range d.Patterns {
		s.state.Patterns[p.ID] = p
	}

	s.state.Candidates = append(s.state.Candidates, d.Candidates...)
	for id, to := range d.StatusChanges {
		if c, ok := s.state.candidateRef(id); ok && c.Status != to {
			c.Status = to
		}
	}

	s.state.ErrorLog = append(s.state.ErrorLog, d.Errors...)
	if n := len(s.state.ErrorLog); n > s.maxErrorLog {
		s.state.ErrorLog = s.state.ErrorLog[n-s.maxErrorLog:]
	}
	s.state.PublishHistory = append(s.state.PublishHistory, d.Publishes...)

	for feed, marker := range d.Markers {
		s.state.Markers[feed] = marker
	}

	return nil
}

// PruneCandidates drops terminal candidates created before the given cycle.
// The publish history retains the outcome of posted candidates, so nothing
// observable is lost.
func (s *Store) PruneCandidates(beforeCycle int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.state.Candidates[:0]
	for _, c := range s.state.Candidates {
		if c.Status == StatusPending || c.Cycle >= beforeCycle {
			kept = append(kept, c)
		}
	}
	s.state.Candidates = kept
}

// candidateRef returns a mutable pointer into the candidate slice.
// Caller must hold s.mu.
func (s *UnifiedState) candidateRef(id string) (*PostCandidate, bool) {
	for i := range s.Candidates {
		if s.Candidates[i].ID == id {
			return &s.Candidates[i], true
		}
	}
	return nil, false
}

func prependMarket(dst, add []MarketRecord, max int) []MarketRecord {
	out := make([]MarketRecord, 0, len(add)+len(dst))
	// Delta records arrive oldest-first; reverse so the newest lands at
	// the head of the window.
	for i := len(add) - 1; i >= 0; i-- {
		out = append(out, add[i])
	}
	out = append(out, dst...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func prependNews(dst, add []NewsEvent, max int) []NewsEvent {
	out := make([]NewsEvent, 0, len(add)+len(dst))
	for i := len(add) - 1; i >= 0; i-- {
		out = append(out, add[i])
	}
	out = append(out, dst...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func copyState(s UnifiedState) UnifiedState {
	out := s
	out.Market = append([]MarketRecord(nil), s.Market...)
	out.News = append([]NewsEvent(nil), s.News...)
	out.Candidates = append([]PostCandidate(nil), s.Candidates...)
	out.ErrorLog = append([]ErrorRecord(nil), s.ErrorLog...)
	out.PublishHistory = append([]PublishOutcome(nil), s.PublishHistory...)
	out.Social = make(map[string]SocialMention, len(s.Social))
	for k, v := range s.Social {
		out.Social[k] = v
	}
	out.Patterns = make(map[string]Pattern, len(s.Patterns))
	for k, v := range s.Patterns {
		out.Patterns[k] = v
	}
	out.Markers = make(map[string]string, len(s.Markers))
	for k, v := range s.Markers {
		out.Markers[k] = v
	}
	return out
}

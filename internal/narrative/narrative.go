// Package narrative turns sufficiently significant patterns into post
// candidates by calling the content-generation collaborator.
//
// Generation is the most expensive call in the loop, so the stage caps
// calls per cycle and never generates twice for a pattern that already has
// a live candidate. A failed generation is reported, not fatal: the
// pattern is retried on a later cycle only if the analyzer re-detects it.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// Context window sizes handed to the generator. Enough recent state for
// grounding without shipping the full windows on every call.
const (
	contextMarket = 20
	contextNews   = 10
	contextSocial = 10
)

var errEmptyGeneration = errors.New("generator returned empty text")

// Stage invokes the generator for patterns at or above Threshold.
type Stage struct {
	Generator   feed.Generator
	IDs         IDGenerator
	Threshold   float64
	MaxPerCycle int
	Timeout     time.Duration
}

// Run generates candidates for eligible patterns, best-scoring first.
//
// Per-pattern failures do not abort the stage: remaining patterns still
// get their chance, the delta carries every candidate that succeeded, and
// the first failure is returned for the recovery coordinator.
func (s *Stage) Run(ctx context.Context, snap state.UnifiedState) (state.Delta, error) {
	d := state.NewDelta("narrative", snap.Cycle)

	eligible := s.eligible(snap)
	var firstErr error
	calls := 0

	for _, p := range eligible {
		if calls >= s.MaxPerCycle {
			slog.Debug("generation cap reached", "cycle", snap.Cycle, "cap", s.MaxPerCycle)
			break
		}
		calls++

		text, confidence, err := s.generate(ctx, p, snap)
		if err != nil {
			slog.Warn("generation failed",
				"cycle", snap.Cycle,
				"pattern", p.ID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("pattern %s: %w", p.ID, err)
			}
			continue
		}

		d.Candidates = append(d.Candidates, state.PostCandidate{
			ID:         s.IDs.Generate(),
			PatternID:  p.ID,
			Text:       text,
			Confidence: confidence,
			Status:     state.StatusPending,
			Cycle:      snap.Cycle,
		})
	}

	return d, firstErr
}

// eligible returns patterns at or above the threshold without a live
// candidate, sorted best-scoring first with ID as tiebreaker.
func (s *Stage) eligible(snap state.UnifiedState) []state.Pattern {
	var out []state.Pattern
	for _, p := range snap.Patterns {
		if p.Score >= s.Threshold && !snap.HasLiveCandidate(p.ID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Stage) generate(ctx context.Context, p state.Pattern, snap state.UnifiedState) (string, float64, error) {
	gctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	window := feed.Context{
		Market: head(snap.Market, contextMarket),
		News:   headNews(snap.News, contextNews),
		Social: recentMentions(snap.Social, contextSocial),
	}

	text, confidence, err := s.Generator.Generate(gctx, p, window)
	if err != nil {
		if gctx.Err() == context.DeadlineExceeded {
			return "", 0, feed.Transient("generate", err)
		}
		return "", 0, err
	}
	if text == "" {
		return "", 0, feed.Validation("generate", errEmptyGeneration)
	}
	return text, clamp01(confidence), nil
}

func head(records []state.MarketRecord, n int) []state.MarketRecord {
	if len(records) > n {
		records = records[:n]
	}
	return append([]state.MarketRecord(nil), records...)
}

func headNews(events []state.NewsEvent, n int) []state.NewsEvent {
	if len(events) > n {
		events = events[:n]
	}
	return append([]state.NewsEvent(nil), events...)
}

// recentMentions returns the n most recent mentions in a deterministic
// order (timestamp desc, then ID).
func recentMentions(mentions map[string]state.SocialMention, n int) []state.SocialMention {
	out := make([]state.SocialMention, 0, len(mentions))
	for _, m := range mentions {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

var errMalformedRecord = errors.New("malformed record")

// NewsStage fetches news events every Interval cycles. On every other cycle
// it is a successful no-op, so cadence never counts as a failure.
type NewsStage struct {
	Feed     feed.NewsFeed
	Interval int
	Keywords []string // case-insensitive title keywords that mark an event significant
	Timeout  time.Duration
}

func (s *NewsStage) Name() string { return feed.SourceNews }

// Scheduled reports whether the stage runs on the given cycle.
func (s *NewsStage) Scheduled(cycle int64) bool {
	return cycle%int64(s.Interval) == 0
}

func (s *NewsStage) Run(ctx context.Context, snap state.UnifiedState) (state.Delta, error) {
	d := state.NewDelta(s.Name(), snap.Cycle)

	if !s.Scheduled(snap.Cycle) {
		return d, nil
	}

	fctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	events, next, err := s.Feed.Fetch(fctx, snap.Markers[feed.SourceNews])
	if err != nil {
		if fctx.Err() == context.DeadlineExceeded {
			return d, feed.Transient("fetch news", err)
		}
		return d, err
	}

	for _, e := range events {
		if e.ID == "" || e.Title == "" {
			return d, feed.Validation("fetch news", errMalformedRecord)
		}
		e.Cycle = snap.Cycle
		e.Significant = s.matchesKeyword(e.Title)
		d.News = append(d.News, e)
	}

	d.SetMarker(feed.SourceNews, next)
	slog.Debug("news stage complete", "cycle", snap.Cycle, "events", len(events))
	return d, nil
}

func (s *NewsStage) matchesKeyword(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range s.Keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

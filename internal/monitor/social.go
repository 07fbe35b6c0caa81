package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// SocialStage fetches mentions and flags high-engagement ones. The state
// store deduplicates mentions by source ID, so refetching an overlap is
// harmless.
type SocialStage struct {
	Feed          feed.SocialFeed
	MinEngagement int
	Timeout       time.Duration
}

func (s *SocialStage) Name() string { return feed.SourceSocial }

func (s *SocialStage) Run(ctx context.Context, snap state.UnifiedState) (state.Delta, error) {
	d := state.NewDelta(s.Name(), snap.Cycle)

	fctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	mentions, next, err := s.Feed.Fetch(fctx, snap.Markers[feed.SourceSocial])
	if err != nil {
		if fctx.Err() == context.DeadlineExceeded {
			return d, feed.Transient("fetch social", err)
		}
		return d, err
	}

	for _, m := range mentions {
		if m.ID == "" {
			return d, feed.Validation("fetch social", errMalformedRecord)
		}
		m.Cycle = snap.Cycle
		m.Significant = m.Engagement >= s.MinEngagement
		d.Social = append(d.Social, m)
	}

	d.SetMarker(feed.SourceSocial, next)
	slog.Debug("social stage complete", "cycle", snap.Cycle, "mentions", len(mentions))
	return d, nil
}

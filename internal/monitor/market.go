package monitor

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// MarketStage fetches price/volume records and flags significant moves.
type MarketStage struct {
	Feed         feed.MarketFeed
	MoveFloorPct float64 // absolute percent move that counts as significant
	Timeout      time.Duration
}

func (s *MarketStage) Name() string { return feed.SourceMarket }

// Run fetches records newer than the stored marker, computes the percent
// move of each record against the previous price for its symbol, and flags
// moves at or beyond MoveFloorPct.
func (s *MarketStage) Run(ctx context.Context, snap state.UnifiedState) (state.Delta, error) {
	d := state.NewDelta(s.Name(), snap.Cycle)

	fctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	records, next, err := s.Feed.Fetch(fctx, snap.Markers[feed.SourceMarket])
	if err != nil {
		if fctx.Err() == context.DeadlineExceeded {
			return d, feed.Transient("fetch market", err)
		}
		return d, err
	}

	// Previous price per symbol seeds from the stored window (which is
	// most-recent-first), then rolls forward through the new batch.
	prev := make(map[string]float64)
	for i := len(snap.Market) - 1; i >= 0; i-- {
		prev[snap.Market[i].Symbol] = snap.Market[i].Price
	}

	for _, r := range records {
		if r.Symbol == "" || r.Price <= 0 {
			return d, feed.Validation("fetch market", errMalformedRecord)
		}
		r.Cycle = snap.Cycle
		if p, ok := prev[r.Symbol]; ok && p > 0 {
			r.PctChange = (r.Price - p) / p * 100
		}
		r.Significant = math.Abs(r.PctChange) >= s.MoveFloorPct
		prev[r.Symbol] = r.Price
		d.Market = append(d.Market, r)
	}

	d.SetMarker(feed.SourceMarket, next)
	slog.Debug("market stage complete",
		"cycle", snap.Cycle,
		"records", len(records),
		"marker", next,
	)
	return d, nil
}

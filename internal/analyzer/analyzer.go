// Package analyzer scans the accumulated monitoring windows for patterns
// worth narrating.
//
// Analysis is a pure function of the snapshot: no clock, no randomness, no
// I/O. Identical state always yields identical patterns, which is what
// makes golden-trace testing and checkpoint replay possible.
//
// Per symbol, at most one pattern is emitted per cycle, chosen in priority
// order correlation > anomaly > trend. Pattern IDs are derived from
// kind and symbol, so a re-detected pattern upserts its predecessor and a
// pattern that is no longer detected drops out of state.
package analyzer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

// Score weights. Corroboration is weighted so that each additional
// independent source raises the score monotonically.
const (
	weightRecency       = 0.3
	weightMagnitude     = 0.4
	weightCorroboration = 0.3

	// magnitudeScale is the percent move that saturates the magnitude term.
	magnitudeScale = 25.0

	// corroborationScale is the source count that saturates corroboration.
	corroborationScale = 3.0

	// anomalyMinSamples is the minimum baseline size for the sigma test.
	anomalyMinSamples = 5
)

// Analyzer detects patterns and assigns significance scores.
type Analyzer struct {
	// Floor discards patterns scoring below it.
	Floor float64

	// Window bounds the gap between a market move and corroborating
	// social/news events.
	Window time.Duration

	// SigmaThreshold is the z-score beyond which a price is anomalous.
	SigmaThreshold float64

	// TrendLength is the run of consecutive same-direction significant
	// moves that constitutes a trend.
	TrendLength int
}

// Analyze returns the patterns detected in the snapshot, sorted by
// descending score with ID as tiebreaker.
func (a *Analyzer) Analyze(snap state.UnifiedState) []state.Pattern {
	bySymbol := groupBySymbol(snap.Market)

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []state.Pattern
	for _, sym := range symbols {
		window := bySymbol[sym] // most-recent-first
		p, ok := a.detect(snap, sym, window)
		if !ok {
			continue
		}
		if p.Score < a.Floor {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// detect finds the highest-priority pattern for one symbol.
func (a *Analyzer) detect(snap state.UnifiedState, sym string, window []state.MarketRecord) (state.Pattern, bool) {
	if p, ok := a.detectCorrelation(snap, sym, window); ok {
		return p, true
	}
	if p, ok := a.detectAnomaly(snap, sym, window); ok {
		return p, true
	}
	if p, ok := a.detectTrend(snap, sym, window); ok {
		return p, true
	}
	return state.Pattern{}, false
}

// detectCorrelation pairs the most recent significant move with social and
// news events inside the correlation window.
func (a *Analyzer) detectCorrelation(snap state.UnifiedState, sym string, window []state.MarketRecord) (state.Pattern, bool) {
	move, ok := latestSignificant(window)
	if !ok {
		return state.Pattern{}, false
	}

	sources := []string{feed.SourceMarket}
	start, end := move.Timestamp.Add(-a.Window), move.Timestamp.Add(a.Window)

	if anyMentionIn(snap.Social, start, end) {
		sources = append(sources, feed.SourceSocial)
	}
	if anyNewsIn(snap.News, start, end) {
		sources = append(sources, feed.SourceNews)
	}
	if len(sources) < 2 {
		// A lone market move is not a correlation; leave it to the
		// anomaly and trend detectors.
		return state.Pattern{}, false
	}

	return state.Pattern{
		ID:          patternID(state.PatternCorrelation, sym),
		Kind:        state.PatternCorrelation,
		Symbol:      sym,
		Score:       a.score(snap.Cycle, move.Cycle, math.Abs(move.PctChange)/magnitudeScale, len(sources)),
		Sources:     sources,
		WindowStart: start,
		WindowEnd:   end,
		Cycle:       snap.Cycle,
	}, true
}

// detectAnomaly flags the newest price when it sits beyond SigmaThreshold
// standard deviations of the older records' baseline.
func (a *Analyzer) detectAnomaly(snap state.UnifiedState, sym string, window []state.MarketRecord) (state.Pattern, bool) {
	if len(window) < anomalyMinSamples+1 {
		return state.Pattern{}, false
	}

	latest := window[0]
	baseline := window[1:]

	mean, std := meanStd(baseline)
	if std == 0 {
		return state.Pattern{}, false
	}
	z := math.Abs(latest.Price-mean) / std
	if z < a.SigmaThreshold {
		return state.Pattern{}, false
	}

	return state.Pattern{
		ID:          patternID(state.PatternAnomaly, sym),
		Kind:        state.PatternAnomaly,
		Symbol:      sym,
		Score:       a.score(snap.Cycle, latest.Cycle, z/(2*a.SigmaThreshold), 1),
		Sources:     []string{feed.SourceMarket},
		WindowStart: baseline[len(baseline)-1].Timestamp,
		WindowEnd:   latest.Timestamp,
		Cycle:       snap.Cycle,
	}, true
}

// detectTrend flags TrendLength consecutive significant moves in the same
// direction at the head of the window.
func (a *Analyzer) detectTrend(snap state.UnifiedState, sym string, window []state.MarketRecord) (state.Pattern, bool) {
	if len(window) < a.TrendLength {
		return state.Pattern{}, false
	}

	run := window[:a.TrendLength] // most-recent-first
	dir := sign(run[0].PctChange)
	if dir == 0 {
		return state.Pattern{}, false
	}

	var sumPct float64
	for _, r := range run {
		if !r.Significant || sign(r.PctChange) != dir {
			return state.Pattern{}, false
		}
		sumPct += math.Abs(r.PctChange)
	}
	avgPct := sumPct / float64(a.TrendLength)

	return state.Pattern{
		ID:          patternID(state.PatternTrend, sym),
		Kind:        state.PatternTrend,
		Symbol:      sym,
		Score:       a.score(snap.Cycle, run[0].Cycle, avgPct/magnitudeScale, 1),
		Sources:     []string{feed.SourceMarket},
		WindowStart: run[len(run)-1].Timestamp,
		WindowEnd:   run[0].Timestamp,
		Cycle:       snap.Cycle,
	}, true
}

// score combines recency, magnitude, and corroboration into [0,1].
// More agreeing sources can only raise the score.
func (a *Analyzer) score(currentCycle, recordCycle int64, magnitude float64, sources int) float64 {
	age := currentCycle - recordCycle
	if age < 0 {
		age = 0
	}
	recency := 1.0 / (1.0 + float64(age))
	corroboration := float64(sources) / corroborationScale

	s := weightRecency*recency + weightMagnitude*clamp01(magnitude) + weightCorroboration*clamp01(corroboration)
	return clamp01(s)
}

func patternID(kind state.PatternKind, sym string) string {
	return fmt.Sprintf("%s:%s", kind, sym)
}

func groupBySymbol(records []state.MarketRecord) map[string][]state.MarketRecord {
	out := make(map[string][]state.MarketRecord)
	for _, r := range records {
		out[r.Symbol] = append(out[r.Symbol], r)
	}
	return out
}

func latestSignificant(window []state.MarketRecord) (state.MarketRecord, bool) {
	for _, r := range window {
		if r.Significant {
			return r, true
		}
	}
	return state.MarketRecord{}, false
}

func anyMentionIn(mentions map[string]state.SocialMention, start, end time.Time) bool {
	for _, m := range mentions {
		if !m.Timestamp.Before(start) && !m.Timestamp.After(end) {
			return true
		}
	}
	return false
}

func anyNewsIn(events []state.NewsEvent, start, end time.Time) bool {
	for _, e := range events {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(end) {
			return true
		}
	}
	return false
}

func meanStd(records []state.MarketRecord) (mean, std float64) {
	n := float64(len(records))
	for _, r := range records {
		mean += r.Price
	}
	mean /= n

	var variance float64
	for _, r := range records {
		d := r.Price - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}

func sign(f float64) int {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		return 0
	}
}

func clamp01(f float64) float64 {
	return math.Min(1, math.Max(0, f))
}

package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gonzo3030/gonzo/internal/state"
)

func newAnalyzer() *Analyzer {
	return &Analyzer{
		Floor:          0.3,
		Window:         15 * time.Minute,
		SigmaThreshold: 3,
		TrendLength:    3,
	}
}

func TestAnalyze_CorrelationFromMoveAndMention(t *testing.T) {
	// A 12% move above the 10% significance floor with a corroborating
	// social mention in the same window must yield exactly one pattern,
	// kind correlation, scoring above the 0.6 narrative threshold.
	snap := state.NewUnifiedState()
	snap.Cycle = 2
	ts := time.Unix(1000, 0).UTC()
	snap.Market = []state.MarketRecord{
		{Symbol: "BTC", Price: 56000, PctChange: 12, Significant: true, Timestamp: ts, Cycle: 2},
		{Symbol: "BTC", Price: 50000, Timestamp: ts.Add(-time.Hour), Cycle: 1},
	}
	snap.Social["m-1"] = state.SocialMention{ID: "m-1", Engagement: 500, Significant: true, Timestamp: ts.Add(5 * time.Minute), Cycle: 2}

	patterns := newAnalyzer().Analyze(snap)

	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, state.PatternCorrelation, p.Kind)
	assert.Equal(t, "correlation:BTC", p.ID)
	assert.Equal(t, []string{"market", "social"}, p.Sources)
	assert.Greater(t, p.Score, 0.6)
	assert.Equal(t, int64(2), p.Cycle)
}

func TestAnalyze_CorroborationRaisesScoreMonotonically(t *testing.T) {
	base := state.NewUnifiedState()
	base.Cycle = 1
	ts := time.Unix(1000, 0).UTC()
	base.Market = []state.MarketRecord{
		{Symbol: "BTC", Price: 56000, PctChange: 12, Significant: true, Timestamp: ts, Cycle: 1},
	}
	base.Social["m-1"] = state.SocialMention{ID: "m-1", Timestamp: ts, Cycle: 1}

	one := newAnalyzer().Analyze(base)
	require.Len(t, one, 1)

	// Add an agreeing news event in the same window.
	base.News = []state.NewsEvent{{ID: "n-1", Title: "surge", Timestamp: ts.Add(time.Minute), Cycle: 1}}
	two := newAnalyzer().Analyze(base)
	require.Len(t, two, 1)

	assert.Greater(t, two[0].Score, one[0].Score, "more sources must not lower the score")
	assert.Equal(t, []string{"market", "social", "news"}, two[0].Sources)
}

func TestAnalyze_LoneMarketMoveIsNotCorrelation(t *testing.T) {
	snap := state.NewUnifiedState()
	snap.Cycle = 1
	snap.Market = []state.MarketRecord{
		{Symbol: "BTC", Price: 56000, PctChange: 12, Significant: true, Timestamp: time.Unix(1000, 0), Cycle: 1},
	}

	patterns := newAnalyzer().Analyze(snap)
	for _, p := range patterns {
		assert.NotEqual(t, state.PatternCorrelation, p.Kind)
	}
}

func TestAnalyze_AnomalyBeyondSigma(t *testing.T) {
	snap := state.NewUnifiedState()
	snap.Cycle = 6
	ts := time.Unix(2000, 0).UTC()

	// Baseline mean 100, std ~1.41; latest price 110 is ~7 sigma out.
	prices := []float64{110, 99, 101, 98, 102, 100} // most-recent-first
	for i, price := range prices {
		snap.Market = append(snap.Market, state.MarketRecord{
			Symbol:    "ETH",
			Price:     price,
			Timestamp: ts.Add(-time.Duration(i) * time.Hour),
			Cycle:     int64(6 - i),
		})
	}

	patterns := newAnalyzer().Analyze(snap)
	require.Len(t, patterns, 1)
	assert.Equal(t, state.PatternAnomaly, patterns[0].Kind)
	assert.Equal(t, "anomaly:ETH", patterns[0].ID)
	assert.GreaterOrEqual(t, patterns[0].Score, 0.3)
}

func TestAnalyze_FlatBaselineNoAnomaly(t *testing.T) {
	snap := state.NewUnifiedState()
	snap.Cycle = 6
	for i := 0; i < 6; i++ {
		snap.Market = append(snap.Market, state.MarketRecord{Symbol: "ETH", Price: 100, Cycle: int64(6 - i)})
	}
	assert.Empty(t, newAnalyzer().Analyze(snap))
}

func TestAnalyze_TrendContinuation(t *testing.T) {
	snap := state.NewUnifiedState()
	snap.Cycle = 3
	ts := time.Unix(3000, 0).UTC()
	for i := 0; i < 3; i++ {
		snap.Market = append(snap.Market, state.MarketRecord{
			Symbol:      "SOL",
			Price:       100 - float64(i)*10,
			PctChange:   12,
			Significant: true,
			Timestamp:   ts.Add(-time.Duration(i) * time.Hour),
			Cycle:       int64(3 - i),
		})
	}

	patterns := newAnalyzer().Analyze(snap)
	require.Len(t, patterns, 1)
	assert.Equal(t, state.PatternTrend, patterns[0].Kind)
	assert.Equal(t, "trend:SOL", patterns[0].ID)
}

func TestAnalyze_TrendBrokenByDirectionFlip(t *testing.T) {
	snap := state.NewUnifiedState()
	snap.Cycle = 3
	changes := []float64{12, -11, 12}
	for i, pct := range changes {
		snap.Market = append(snap.Market, state.MarketRecord{
			Symbol: "SOL", Price: 100, PctChange: pct, Significant: true, Cycle: int64(3 - i),
		})
	}
	assert.Empty(t, newAnalyzer().Analyze(snap))
}

func TestAnalyze_FloorDiscardsWeakPatterns(t *testing.T) {
	a := newAnalyzer()
	a.Floor = 0.99

	snap := state.NewUnifiedState()
	snap.Cycle = 1
	snap.Market = []state.MarketRecord{
		{Symbol: "BTC", Price: 56000, PctChange: 12, Significant: true, Timestamp: time.Unix(1000, 0), Cycle: 1},
	}
	snap.Social["m-1"] = state.SocialMention{ID: "m-1", Timestamp: time.Unix(1000, 0), Cycle: 1}

	assert.Empty(t, a.Analyze(snap), "patterns below the floor are discarded, not stored")
}

func TestAnalyze_Deterministic(t *testing.T) {
	snap := state.NewUnifiedState()
	snap.Cycle = 4
	ts := time.Unix(5000, 0).UTC()
	snap.Market = []state.MarketRecord{
		{Symbol: "BTC", Price: 56000, PctChange: 12, Significant: true, Timestamp: ts, Cycle: 4},
		{Symbol: "ETH", Price: 2200, PctChange: -15, Significant: true, Timestamp: ts, Cycle: 4},
	}
	snap.Social["m-1"] = state.SocialMention{ID: "m-1", Timestamp: ts, Cycle: 4}
	snap.Social["m-2"] = state.SocialMention{ID: "m-2", Timestamp: ts.Add(time.Minute), Cycle: 4}

	a := newAnalyzer()
	first := a.Analyze(snap)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Analyze(snap), "identical input must yield identical patterns")
	}
}

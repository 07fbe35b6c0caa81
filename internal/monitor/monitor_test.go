package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

type fakeMarketFeed struct {
	records []state.MarketRecord
	next    string
	err     error
	gotSince string
}

func (f *fakeMarketFeed) Fetch(_ context.Context, since string) ([]state.MarketRecord, string, error) {
	f.gotSince = since
	return f.records, f.next, f.err
}

type fakeNewsFeed struct {
	events []state.NewsEvent
	next   string
	err    error
	calls  int
}

func (f *fakeNewsFeed) Fetch(context.Context, string) ([]state.NewsEvent, string, error) {
	f.calls++
	return f.events, f.next, f.err
}

type fakeSocialFeed struct {
	mentions []state.SocialMention
	next     string
	err      error
}

func (f *fakeSocialFeed) Fetch(context.Context, string) ([]state.SocialMention, string, error) {
	return f.mentions, f.next, f.err
}

func snapshotAt(cycle int64) state.UnifiedState {
	s := state.NewUnifiedState()
	s.Cycle = cycle
	return s
}

func TestMarketStage_FlagsSignificantMove(t *testing.T) {
	f := &fakeMarketFeed{
		records: []state.MarketRecord{
			{Symbol: "BTC", Price: 50000, Volume: 10, Timestamp: time.Unix(100, 0)},
			{Symbol: "BTC", Price: 56000, Volume: 12, Timestamp: time.Unix(160, 0)},
		},
		next: "t-160",
	}
	s := &MarketStage{Feed: f, MoveFloorPct: 10, Timeout: time.Second}

	d, err := s.Run(context.Background(), snapshotAt(1))
	require.NoError(t, err)
	require.Len(t, d.Market, 2)

	assert.False(t, d.Market[0].Significant, "no prior price, no move")
	assert.True(t, d.Market[1].Significant, "12% move above 10% floor")
	assert.InDelta(t, 12.0, d.Market[1].PctChange, 0.001)
	assert.Equal(t, "t-160", d.Markers[feed.SourceMarket])
	assert.Equal(t, int64(1), d.Cycle)
}

func TestMarketStage_SeedsPreviousPriceFromSnapshot(t *testing.T) {
	snap := snapshotAt(2)
	snap.Market = []state.MarketRecord{{Symbol: "BTC", Price: 50000, Cycle: 1}}
	snap.Markers[feed.SourceMarket] = "t-100"

	f := &fakeMarketFeed{records: []state.MarketRecord{{Symbol: "BTC", Price: 44000, Timestamp: time.Unix(200, 0)}}}
	s := &MarketStage{Feed: f, MoveFloorPct: 10, Timeout: time.Second}

	d, err := s.Run(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, "t-100", f.gotSince, "marker passed through")
	require.Len(t, d.Market, 1)
	assert.True(t, d.Market[0].Significant)
	assert.InDelta(t, -12.0, d.Market[0].PctChange, 0.001)
}

func TestMarketStage_MalformedRecordIsValidationError(t *testing.T) {
	f := &fakeMarketFeed{records: []state.MarketRecord{{Symbol: "", Price: 0}}}
	s := &MarketStage{Feed: f, MoveFloorPct: 10, Timeout: time.Second}

	_, err := s.Run(context.Background(), snapshotAt(1))
	require.Error(t, err)
	assert.Equal(t, feed.KindValidation, feed.KindOf(err))
}

func TestMarketStage_FeedErrorPassesThrough(t *testing.T) {
	f := &fakeMarketFeed{err: feed.Auth("fetch market", errors.New("401"))}
	s := &MarketStage{Feed: f, MoveFloorPct: 10, Timeout: time.Second}

	_, err := s.Run(context.Background(), snapshotAt(1))
	require.Error(t, err)
	assert.Equal(t, feed.KindAuth, feed.KindOf(err))
}

func TestNewsStage_ScheduledEveryNthCycle(t *testing.T) {
	for _, interval := range []int{1, 3, 5} {
		f := &fakeNewsFeed{}
		s := &NewsStage{Feed: f, Interval: interval, Timeout: time.Second}

		for cycle := int64(1); cycle <= 15; cycle++ {
			before := f.calls
			d, err := s.Run(context.Background(), snapshotAt(cycle))
			require.NoError(t, err)

			if cycle%int64(interval) == 0 {
				assert.Equal(t, before+1, f.calls, "interval %d cycle %d should fetch", interval, cycle)
			} else {
				assert.Equal(t, before, f.calls, "interval %d cycle %d should be a no-op", interval, cycle)
				assert.True(t, d.Empty())
			}
		}
	}
}

func TestNewsStage_KeywordSignificance(t *testing.T) {
	f := &fakeNewsFeed{events: []state.NewsEvent{
		{ID: "n-1", Title: "Exchange hack drains wallets", Source: "wire", Timestamp: time.Unix(100, 0)},
		{ID: "n-2", Title: "Quiet day in markets", Source: "wire", Timestamp: time.Unix(110, 0)},
	}}
	s := &NewsStage{Feed: f, Interval: 1, Keywords: []string{"HACK"}, Timeout: time.Second}

	d, err := s.Run(context.Background(), snapshotAt(1))
	require.NoError(t, err)
	require.Len(t, d.News, 2)
	assert.True(t, d.News[0].Significant, "keyword match is case-insensitive")
	assert.False(t, d.News[1].Significant)
}

func TestSocialStage_EngagementSignificance(t *testing.T) {
	f := &fakeSocialFeed{
		mentions: []state.SocialMention{
			{ID: "m-1", Author: "a", Engagement: 500, Timestamp: time.Unix(100, 0)},
			{ID: "m-2", Author: "b", Engagement: 3, Timestamp: time.Unix(110, 0)},
		},
		next: "m-2",
	}
	s := &SocialStage{Feed: f, MinEngagement: 100, Timeout: time.Second}

	d, err := s.Run(context.Background(), snapshotAt(1))
	require.NoError(t, err)
	require.Len(t, d.Social, 2)
	assert.True(t, d.Social[0].Significant)
	assert.False(t, d.Social[1].Significant)
	assert.Equal(t, "m-2", d.Markers[feed.SourceSocial])
}

func TestSocialStage_MissingIDIsValidationError(t *testing.T) {
	f := &fakeSocialFeed{mentions: []state.SocialMention{{Author: "a"}}}
	s := &SocialStage{Feed: f, MinEngagement: 100, Timeout: time.Second}

	_, err := s.Run(context.Background(), snapshotAt(1))
	require.Error(t, err)
	assert.Equal(t, feed.KindValidation, feed.KindOf(err))
}

package feed

import (
	"context"

	"github.com/Gonzo3030/gonzo/internal/state"
)

// Feed names used as marker keys and stage names.
const (
	SourceMarket = "market"
	SourceNews   = "news"
	SourceSocial = "social"
)

// MarketFeed fetches price/volume records newer than the since marker.
// The returned marker is persisted in state and passed back on the next
// fetch, so a restored checkpoint resumes exactly where it stopped.
type MarketFeed interface {
	Fetch(ctx context.Context, since string) ([]state.MarketRecord, string, error)
}

// NewsFeed fetches news events newer than the since marker.
type NewsFeed interface {
	Fetch(ctx context.Context, since string) ([]state.NewsEvent, string, error)
}

// SocialFeed fetches mentions newer than the since marker.
type SocialFeed interface {
	Fetch(ctx context.Context, since string) ([]state.SocialMention, string, error)
}

// Sources bundles the three inbound feeds a loop monitors.
type Sources struct {
	Market MarketFeed
	News   NewsFeed
	Social SocialFeed
}

// Context is the slice of recent state handed to the generator alongside a
// pattern. It is a read-only view; the generator must not retain it.
type Context struct {
	Market []state.MarketRecord
	News   []state.NewsEvent
	Social []state.SocialMention
}

// Generator turns a detected pattern into candidate narrative text with a
// confidence score in [0,1].
type Generator interface {
	Generate(ctx context.Context, p state.Pattern, window Context) (text string, confidence float64, err error)
}

// Poster publishes text to the outbound channel. replyTo is empty for a
// top-level post. Returns the channel-assigned post ID.
type Poster interface {
	Post(ctx context.Context, text string, replyTo string) (postID string, err error)
}

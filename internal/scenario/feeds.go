package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/state"
)

var errScripted = errors.New("scripted failure")

// kindError builds the typed feed error for a scripted failure kind.
func kindError(kind, op string) error {
	switch kind {
	case string(feed.KindRateLimited):
		return feed.RateLimited(op, errScripted)
	case string(feed.KindValidation):
		return feed.Validation(op, errScripted)
	case string(feed.KindRejected):
		return feed.Rejected(op, errScripted)
	case string(feed.KindAuth):
		return feed.Auth(op, errScripted)
	case string(feed.KindConfig):
		return feed.Config(op, errScripted)
	default:
		return feed.Transient(op, errScripted)
	}
}

// script holds the batch on offer for the current cycle. The runner swaps
// it in before each step; each feed consumes its slice at most once.
type script struct {
	mu  sync.Mutex
	cur CycleFeed
}

func (s *script) set(f CycleFeed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = f
}

type marketFeed struct{ s *script }

func (m *marketFeed) Fetch(_ context.Context, since string) ([]state.MarketRecord, string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	f := m.s.cur
	if f.MarketError != "" {
		return nil, since, kindError(f.MarketError, "fetch market")
	}
	m.s.cur.Market = nil
	if len(f.Market) == 0 {
		return nil, since, nil
	}
	return f.Market, fmt.Sprintf("market-%d", f.Cycle), nil
}

type socialFeed struct{ s *script }

func (m *socialFeed) Fetch(_ context.Context, since string) ([]state.SocialMention, string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	f := m.s.cur
	if f.SocialError != "" {
		return nil, since, kindError(f.SocialError, "fetch social")
	}
	m.s.cur.Social = nil
	if len(f.Social) == 0 {
		return nil, since, nil
	}
	return f.Social, fmt.Sprintf("social-%d", f.Cycle), nil
}

type newsFeed struct{ s *script }

func (m *newsFeed) Fetch(_ context.Context, since string) ([]state.NewsEvent, string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	f := m.s.cur
	if f.NewsError != "" {
		return nil, since, kindError(f.NewsError, "fetch news")
	}
	m.s.cur.News = nil
	if len(f.News) == 0 {
		return nil, since, nil
	}
	return f.News, fmt.Sprintf("news-%d", f.Cycle), nil
}

// scriptedGenerator pops one step per Generate call. An exhausted script
// rejects further generation so an over-eager scenario fails visibly
// instead of inventing content.
type scriptedGenerator struct {
	mu    sync.Mutex
	steps []GeneratorStep
	idx   int
}

func (g *scriptedGenerator) Generate(_ context.Context, _ state.Pattern, _ feed.Context) (string, float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.steps) {
		return "", 0, feed.Rejected("generate", errors.New("generator script exhausted"))
	}
	step := g.steps[g.idx]
	g.idx++
	if step.Error != "" {
		return "", 0, kindError(step.Error, "generate")
	}
	return step.Text, step.Confidence, nil
}

// scriptedPoster pops one step per Post call; once the script runs out it
// accepts every post with sequential IDs.
type scriptedPoster struct {
	mu    sync.Mutex
	steps []PosterStep
	idx   int
	posts int
}

func (p *scriptedPoster) Post(_ context.Context, _ string, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.idx < len(p.steps) {
		step := p.steps[p.idx]
		p.idx++
		if step.Error != "" {
			return "", kindError(step.Error, "post")
		}
		p.posts++
		if step.PostID != "" {
			return step.PostID, nil
		}
		return fmt.Sprintf("post-%d", p.posts), nil
	}

	p.posts++
	return fmt.Sprintf("post-%d", p.posts), nil
}

// seqIDs mints sequential candidate IDs for deterministic traces. A
// resumed run carries a prefix derived from the checkpoint cycle, so its
// IDs cannot collide with candidates minted before the checkpoint.
type seqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func (g *seqIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("cand-%s%d", g.prefix, g.n)
}

package publish

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/ratelimit"
	"github.com/Gonzo3030/gonzo/internal/state"
)

type fakePoster struct {
	ids   []string
	errs  []error
	calls int
}

func (f *fakePoster) Post(context.Context, string, string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.ids) {
		return f.ids[i], nil
	}
	return "post-x", nil
}

const postText = "A twelve percent move with the crowd roaring behind it is not noise."

func newPublisher(poster *fakePoster, limiter *ratelimit.Limiter) *Publisher {
	return &Publisher{
		Poster:          poster,
		Limiter:         limiter,
		ConfidenceFloor: 0.7,
		MaxAge:          6,
		MinLength:       10,
		MaxLength:       280,
		Timeout:         time.Second,
		Now:             func() time.Time { return time.Unix(9000, 0).UTC() },
	}
}

func pendingSnap(cycle int64, cands ...state.PostCandidate) state.UnifiedState {
	s := state.NewUnifiedState()
	s.Cycle = cycle
	s.Candidates = cands
	return s
}

func TestRun_PostsPendingCandidate(t *testing.T) {
	poster := &fakePoster{ids: []string{"post-1"}}
	p := newPublisher(poster, ratelimit.New(1, 1))

	snap := pendingSnap(3, state.PostCandidate{ID: "c-1", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3})
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, state.StatusPosted, d.StatusChanges["c-1"])
	require.Len(t, d.Publishes, 1)
	out := d.Publishes[0]
	assert.Equal(t, "c-1", out.CandidateID)
	assert.Equal(t, "post-1", out.PostID)
	assert.Equal(t, ContentHash(postText), out.ContentHash)
	assert.Equal(t, int64(3), out.Cycle)
}

func TestRun_RateLimitedCandidateStaysPending(t *testing.T) {
	poster := &fakePoster{ids: []string{"post-1"}}
	limiter := ratelimit.New(1, 1)
	p := newPublisher(poster, limiter)

	snap := pendingSnap(3,
		state.PostCandidate{ID: "c-1", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3},
		state.PostCandidate{ID: "c-2", Text: postText + " Again.", Confidence: 0.9, Status: state.StatusPending, Cycle: 3},
	)
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, poster.calls, "capacity 1 means at most one post per cycle")
	assert.Equal(t, state.StatusPosted, d.StatusChanges["c-1"])
	_, changed := d.StatusChanges["c-2"]
	assert.False(t, changed, "denied candidate keeps pending status")
}

func TestRun_FIFOOrder(t *testing.T) {
	poster := &fakePoster{ids: []string{"post-1", "post-2"}}
	p := newPublisher(poster, ratelimit.New(2, 2))

	snap := pendingSnap(4,
		state.PostCandidate{ID: "older", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 2},
		state.PostCandidate{ID: "newer", Text: postText + " Again.", Confidence: 0.9, Status: state.StatusPending, Cycle: 4},
	)
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	require.Len(t, d.Publishes, 2)
	assert.Equal(t, "older", d.Publishes[0].CandidateID)
	assert.Equal(t, "newer", d.Publishes[1].CandidateID)
}

func TestRun_AgesOutToRejected(t *testing.T) {
	poster := &fakePoster{}
	p := newPublisher(poster, ratelimit.New(1, 1))

	snap := pendingSnap(10, state.PostCandidate{ID: "c-1", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3})
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, state.StatusRejected, d.StatusChanges["c-1"])
	assert.Zero(t, poster.calls)
}

func TestRun_LowConfidenceWaitsWithoutToken(t *testing.T) {
	poster := &fakePoster{}
	limiter := ratelimit.New(1, 1)
	p := newPublisher(poster, limiter)

	snap := pendingSnap(3, state.PostCandidate{ID: "c-1", Text: postText, Confidence: 0.2, Status: state.StatusPending, Cycle: 3})
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Empty(t, d.StatusChanges)
	assert.Zero(t, poster.calls)
	assert.Equal(t, 1, limiter.State().Tokens, "no token consumed")
}

func TestRun_LengthBoundsRejectWithoutToken(t *testing.T) {
	poster := &fakePoster{}
	limiter := ratelimit.New(1, 1)
	p := newPublisher(poster, limiter)

	snap := pendingSnap(3,
		state.PostCandidate{ID: "short", Text: "tiny", Confidence: 0.9, Status: state.StatusPending, Cycle: 3},
		state.PostCandidate{ID: "long", Text: strings.Repeat("x", 300), Confidence: 0.9, Status: state.StatusPending, Cycle: 3},
	)
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, state.StatusRejected, d.StatusChanges["short"])
	assert.Equal(t, state.StatusRejected, d.StatusChanges["long"])
	assert.Equal(t, 1, limiter.State().Tokens)
}

func TestRun_PosterRejectionIsTerminalFailed(t *testing.T) {
	poster := &fakePoster{errs: []error{feed.Rejected("post", errors.New("duplicate content"))}}
	p := newPublisher(poster, ratelimit.New(1, 1))

	snap := pendingSnap(3, state.PostCandidate{ID: "c-1", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3})
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err, "content rejection is a candidate outcome, not a stage failure")

	assert.Equal(t, state.StatusFailed, d.StatusChanges["c-1"])
	assert.Empty(t, d.Publishes)
}

func TestRun_TransientPostFailureKeepsPending(t *testing.T) {
	poster := &fakePoster{errs: []error{feed.Transient("post", errors.New("503"))}}
	p := newPublisher(poster, ratelimit.New(1, 1))

	snap := pendingSnap(3, state.PostCandidate{ID: "c-1", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3})
	d, err := p.Run(context.Background(), snap)
	require.Error(t, err, "transient failure surfaces for recovery")
	assert.Equal(t, feed.KindTransient, feed.KindOf(err))
	assert.Empty(t, d.StatusChanges)
}

func TestRun_DuplicateContentSuppressed(t *testing.T) {
	poster := &fakePoster{}
	p := newPublisher(poster, ratelimit.New(1, 1))

	snap := pendingSnap(3, state.PostCandidate{ID: "c-2", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3})
	snap.PublishHistory = []state.PublishOutcome{{CandidateID: "c-1", PostID: "post-1", ContentHash: ContentHash(postText), Cycle: 1}}

	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)
	assert.Equal(t, state.StatusRejected, d.StatusChanges["c-2"])
	assert.Zero(t, poster.calls)
}

func TestRun_DuplicateContentWithinOneCycleSuppressed(t *testing.T) {
	poster := &fakePoster{ids: []string{"post-1", "post-2"}}
	p := newPublisher(poster, ratelimit.New(2, 2))

	// Two pending candidates with NFC-identical text and enough tokens for
	// both: only the first may post.
	snap := pendingSnap(3,
		state.PostCandidate{ID: "c-1", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3},
		state.PostCandidate{ID: "c-2", Text: postText, Confidence: 0.9, Status: state.StatusPending, Cycle: 3},
	)
	d, err := p.Run(context.Background(), snap)
	require.NoError(t, err)

	assert.Equal(t, 1, poster.calls)
	assert.Equal(t, state.StatusPosted, d.StatusChanges["c-1"])
	assert.Equal(t, state.StatusRejected, d.StatusChanges["c-2"])
	require.Len(t, d.Publishes, 1)
	assert.Equal(t, "c-1", d.Publishes[0].CandidateID)
}

func TestContentHash_NFCNormalizes(t *testing.T) {
	// "é" precomposed vs. "e" + combining acute must hash identically.
	composed := "café thoughts"
	decomposed := "café thoughts"
	assert.Equal(t, ContentHash(composed), ContentHash(decomposed))
	assert.NotEqual(t, ContentHash(composed), ContentHash("cafe thoughts"))
}

// Package publish drains pending candidates through the rate-limited
// outbound channel.
//
// Candidates are processed strictly FIFO. A candidate leaves the pending
// set only by posting, by content-level rejection, or by aging out; a
// denied rate-limit token leaves it pending for the next cycle. Duplicate
// suppression hashes the NFC-normalized text against the publish history,
// so a restart from a checkpoint can never double-post.
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/Gonzo3030/gonzo/internal/feed"
	"github.com/Gonzo3030/gonzo/internal/ratelimit"
	"github.com/Gonzo3030/gonzo/internal/state"
)

var errDuplicateContent = errors.New("duplicate content")

// Publisher posts pending candidates under rate-limiter control.
type Publisher struct {
	Poster          feed.Poster
	Limiter         *ratelimit.Limiter
	ConfidenceFloor float64
	MaxAge          int64 // cycles a candidate may stay pending
	MinLength       int
	MaxLength       int
	Timeout         time.Duration
	Now             func() time.Time
}

// ContentHash returns the dedup hash of post text: SHA-256 over the
// NFC-normalized bytes, so visually identical text hashes identically
// regardless of the generator's Unicode composition.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(text)))
	return hex.EncodeToString(sum[:])
}

// Run processes the pending queue in FIFO order and returns the delta of
// status changes and publish outcomes.
//
// Candidate dispositions, checked in order:
//   - past MaxAge                      -> rejected
//   - text length out of bounds        -> rejected (no token consumed)
//   - duplicate of published content   -> rejected (no token consumed)
//   - confidence below floor           -> stays pending until it ages out
//   - rate limiter denies              -> stays pending, retried next cycle
//   - poster rejects content           -> failed, never retried
//   - poster transient failure         -> stays pending, error reported
//   - posted                           -> posted + publish-history entry
func (p *Publisher) Run(ctx context.Context, snap state.UnifiedState) (state.Delta, error) {
	d := state.NewDelta("publisher", snap.Cycle)
	now := p.Now
	if now == nil {
		now = time.Now
	}

	var firstErr error
	// Hashes posted within this run; the snapshot's history cannot see them.
	posted := make(map[string]bool)
	for _, c := range snap.Pending() {
		age := snap.Cycle - c.Cycle
		if age > p.MaxAge {
			slog.Info("candidate aged out", "candidate", c.ID, "age_cycles", age)
			d.SetStatus(c.ID, state.StatusRejected)
			continue
		}

		if len(c.Text) < p.MinLength || len(c.Text) > p.MaxLength {
			slog.Info("candidate outside length bounds", "candidate", c.ID, "length", len(c.Text))
			d.SetStatus(c.ID, state.StatusRejected)
			continue
		}

		hash := ContentHash(c.Text)
		if snap.Published(hash) || posted[hash] {
			slog.Info("duplicate content suppressed", "candidate", c.ID)
			d.SetStatus(c.ID, state.StatusRejected)
			continue
		}

		if c.Confidence < p.ConfidenceFloor {
			// Not worth a token yet; re-evaluated next cycle until MaxAge.
			continue
		}

		if !p.Limiter.TryAcquire() {
			slog.Debug("rate limiter denied, candidate stays pending", "candidate", c.ID)
			continue
		}

		postID, err := p.post(ctx, c.Text)
		if err != nil {
			if feed.IsKind(err, feed.KindRejected) {
				slog.Warn("post rejected by channel", "candidate", c.ID, "error", err)
				d.SetStatus(c.ID, state.StatusFailed)
				continue
			}
			slog.Warn("post failed, candidate stays pending", "candidate", c.ID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("candidate %s: %w", c.ID, err)
			}
			continue
		}

		posted[hash] = true
		d.SetStatus(c.ID, state.StatusPosted)
		d.Publishes = append(d.Publishes, state.PublishOutcome{
			CandidateID: c.ID,
			PostID:      postID,
			ContentHash: hash,
			Cycle:       snap.Cycle,
			Timestamp:   now(),
		})
		slog.Info("posted", "candidate", c.ID, "post_id", postID, "cycle", snap.Cycle)
	}

	return d, firstErr
}

func (p *Publisher) post(ctx context.Context, text string) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	postID, err := p.Poster.Post(pctx, text, "")
	if err != nil {
		if pctx.Err() == context.DeadlineExceeded {
			return "", feed.Transient("post", err)
		}
		return "", err
	}
	return postID, nil
}

package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/Gonzo3030/gonzo/internal/state"
)

// AppendErrorRecord inserts one error record into the log.
// The log is append-only; records are never updated or deleted.
func (j *Journal) AppendErrorRecord(ctx context.Context, rec state.ErrorRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO error_log (stage, cycle, kind, retries, ts)
		VALUES (?, ?, ?, ?, ?)
	`,
		rec.Stage,
		rec.Cycle,
		rec.Kind,
		rec.Retries,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append error record: %w", err)
	}

	return nil
}

// AppendPublishOutcome inserts one publish outcome.
// Uses ON CONFLICT(candidate_id) DO NOTHING for idempotency - a candidate
// is published at most once, so a duplicate write is silently ignored.
func (j *Journal) AppendPublishOutcome(ctx context.Context, out state.PublishOutcome) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO publish_history (candidate_id, post_id, content_hash, cycle, ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(candidate_id) DO NOTHING
	`,
		out.CandidateID,
		out.PostID,
		out.ContentHash,
		out.Cycle,
		out.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append publish outcome: %w", err)
	}

	return nil
}

// SaveCheckpoint stores a serialized state snapshot keyed by cycle.
// Writing the same cycle twice keeps the first checkpoint (idempotent).
func (j *Journal) SaveCheckpoint(ctx context.Context, cycle int64, blob []byte) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO checkpoints (cycle, state, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cycle) DO NOTHING
	`,
		cycle,
		blob,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return nil
}

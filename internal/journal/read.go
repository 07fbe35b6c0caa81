package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Gonzo3030/gonzo/internal/state"
)

// ReadErrorLog returns all error records in insertion order.
//
// Returns an empty slice (not nil) if no records exist.
func (j *Journal) ReadErrorLog(ctx context.Context) ([]state.ErrorRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT stage, cycle, kind, retries, ts
		FROM error_log
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query error log: %w", err)
	}
	defer rows.Close()

	var records []state.ErrorRecord
	for rows.Next() {
		var rec state.ErrorRecord
		var ts string
		if err := rows.Scan(&rec.Stage, &rec.Cycle, &rec.Kind, &rec.Retries, &ts); err != nil {
			return nil, fmt.Errorf("scan error record: %w", err)
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse error record timestamp: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error log: %w", err)
	}

	if records == nil {
		records = []state.ErrorRecord{}
	}
	return records, nil
}

// ReadPublishHistory returns all publish outcomes ordered by cycle, then
// candidate ID for records within the same cycle.
//
// Returns an empty slice (not nil) if no records exist.
func (j *Journal) ReadPublishHistory(ctx context.Context) ([]state.PublishOutcome, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT candidate_id, post_id, content_hash, cycle, ts
		FROM publish_history
		ORDER BY cycle ASC, candidate_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query publish history: %w", err)
	}
	defer rows.Close()

	var outcomes []state.PublishOutcome
	for rows.Next() {
		var out state.PublishOutcome
		var ts string
		if err := rows.Scan(&out.CandidateID, &out.PostID, &out.ContentHash, &out.Cycle, &ts); err != nil {
			return nil, fmt.Errorf("scan publish outcome: %w", err)
		}
		out.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse publish outcome timestamp: %w", err)
		}
		outcomes = append(outcomes, out)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publish history: %w", err)
	}

	if outcomes == nil {
		outcomes = []state.PublishOutcome{}
	}
	return outcomes, nil
}

// LatestCheckpoint returns the serialized snapshot with the highest cycle.
// Returns (0, nil, nil) when no checkpoint has been written yet.
func (j *Journal) LatestCheckpoint(ctx context.Context) (int64, []byte, error) {
	var cycle int64
	var blob []byte
	err := j.db.QueryRowContext(ctx, `
		SELECT cycle, state
		FROM checkpoints
		ORDER BY cycle DESC
		LIMIT 1
	`).Scan(&cycle, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	return cycle, blob, nil
}

// Checkpoint returns the serialized snapshot for an exact cycle.
// Returns (nil, nil) when no checkpoint exists for that cycle.
func (j *Journal) Checkpoint(ctx context.Context, cycle int64) ([]byte, error) {
	var blob []byte
	err := j.db.QueryRowContext(ctx, `
		SELECT state FROM checkpoints WHERE cycle = ?
	`, cycle).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	return blob, nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reprise-ai/reprise/internal/model"
)

// AppendEvent inserts a single event at its proposed sequence slot. The
// (prompt_id, seq) primary key is the arbiter for optimistic sequencing:
// if a concurrent append already claimed the slot, the insert fails with
// model.ErrConflict and nothing is written. The write is durable before
// this returns.
func (db *DB) AppendEvent(ctx context.Context, e model.Event) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO prompt_events (prompt_id, seq, kind, text, target_seq, note, prev_hash, content_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.PromptID, e.Seq, string(e.Kind), e.Text, e.TargetSeq,
		e.Note, e.PrevHash, e.ContentHash, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: append event seq %d: %w", e.Seq, classify(err))
	}
	return nil
}

// ListEvents returns the full history for a prompt in ascending seq order.
func (db *DB) ListEvents(ctx context.Context, promptID uuid.UUID) ([]model.Event, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT prompt_id, seq, kind, text, target_seq, note, prev_hash, content_hash, created_at
		 FROM prompt_events WHERE prompt_id = $1
		 ORDER BY seq ASC`, promptID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEvent retrieves one event by prompt and sequence number.
func (db *DB) GetEvent(ctx context.Context, promptID uuid.UUID, seq int64) (model.Event, error) {
	var e model.Event
	err := db.pool.QueryRow(ctx,
		`SELECT prompt_id, seq, kind, text, target_seq, note, prev_hash, content_hash, created_at
		 FROM prompt_events WHERE prompt_id = $1 AND seq = $2`, promptID, seq,
	).Scan(&e.PromptID, &e.Seq, &e.Kind, &e.Text, &e.TargetSeq, &e.Note, &e.PrevHash, &e.ContentHash, &e.CreatedAt)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: get event seq %d: %w", seq, classify(err))
	}
	return e, nil
}

// LatestEvent returns the event with the highest seq for a prompt.
// A prompt always has at least its bootstrap event.
func (db *DB) LatestEvent(ctx context.Context, promptID uuid.UUID) (model.Event, error) {
	var e model.Event
	err := db.pool.QueryRow(ctx,
		`SELECT prompt_id, seq, kind, text, target_seq, note, prev_hash, content_hash, created_at
		 FROM prompt_events WHERE prompt_id = $1
		 ORDER BY seq DESC LIMIT 1`, promptID,
	).Scan(&e.PromptID, &e.Seq, &e.Kind, &e.Text, &e.TargetSeq, &e.Note, &e.PrevHash, &e.ContentHash, &e.CreatedAt)
	if err != nil {
		return model.Event{}, fmt.Errorf("storage: latest event: %w", classify(err))
	}
	return e, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.PromptID, &e.Seq, &e.Kind, &e.Text, &e.TargetSeq,
			&e.Note, &e.PrevHash, &e.ContentHash, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
)

// CreatePrompt inserts a prompt together with its bootstrap event in one
// transaction, so a prompt is never observable without a materializable log.
func (db *DB) CreatePrompt(ctx context.Context, p model.Prompt, first model.Event) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin create prompt: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO prompts (id, name, created_at) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("storage: insert prompt: %w", classify(err))
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO prompt_events (prompt_id, seq, kind, text, target_seq, note, prev_hash, content_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		first.PromptID, first.Seq, string(first.Kind), first.Text, first.TargetSeq,
		first.Note, first.PrevHash, first.ContentHash, first.CreatedAt,
	); err != nil {
		return fmt.Errorf("storage: insert bootstrap event: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit create prompt: %w", err)
	}
	return nil
}

// GetPrompt retrieves a prompt by ID.
func (db *DB) GetPrompt(ctx context.Context, id uuid.UUID) (model.Prompt, error) {
	var p model.Prompt
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM prompts WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return model.Prompt{}, fmt.Errorf("storage: get prompt: %w", classify(err))
	}
	return p, nil
}

// ListPrompts returns the most recently created prompts.
func (db *DB) ListPrompts(ctx context.Context, limit int) ([]model.Prompt, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, created_at FROM prompts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list prompts: %w", err)
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

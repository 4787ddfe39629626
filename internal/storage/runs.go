package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
)

// InsertRun persists a finished run record, whatever its terminal status.
func (db *DB) InsertRun(ctx context.Context, r model.Run) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("storage: marshal run params: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO runs (id, prompt_id, prompt_event_seq, criteria_version,
		                   input_text, output_text, model, params, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.PromptID, r.PromptEventSeq, r.CriteriaVersion,
		r.InputText, r.OutputText, r.Model, params, r.Status, r.Error, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert run: %w", classify(err))
	}
	return nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, prompt_id, prompt_event_seq, criteria_version,
		        input_text, output_text, model, params, status, error, created_at
		 FROM runs WHERE id = $1`, id,
	)
	return scanRun(row)
}

// ListRunsByPrompt returns a prompt's runs, newest first.
func (db *DB) ListRunsByPrompt(ctx context.Context, promptID uuid.UUID, limit int) ([]model.Run, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, prompt_id, prompt_event_seq, criteria_version,
		        input_text, output_text, model, params, status, error, created_at
		 FROM runs WHERE prompt_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, promptID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (model.Run, error) {
	var r model.Run
	var params []byte
	if err := row.Scan(&r.ID, &r.PromptID, &r.PromptEventSeq, &r.CriteriaVersion,
		&r.InputText, &r.OutputText, &r.Model, &params, &r.Status, &r.Error, &r.CreatedAt); err != nil {
		return model.Run{}, fmt.Errorf("storage: run: %w", classify(err))
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Params); err != nil {
			return model.Run{}, fmt.Errorf("storage: unmarshal run params: %w", err)
		}
	}
	return r, nil
}

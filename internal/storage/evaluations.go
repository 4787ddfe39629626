package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
)

// InsertEvaluation persists an evaluation record for a run.
func (db *DB) InsertEvaluation(ctx context.Context, e model.Evaluation) error {
	per, err := json.Marshal(e.PerCriterion)
	if err != nil {
		return fmt.Errorf("storage: marshal evaluation results: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO evaluations (id, run_id, criteria_version, per_criterion,
		                          aggregate, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.RunID, e.CriteriaVersion, per, e.Aggregate, e.Status, e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert evaluation: %w", classify(err))
	}
	return nil
}

// GetEvaluation returns one evaluation by id.
func (db *DB) GetEvaluation(ctx context.Context, id uuid.UUID) (model.Evaluation, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, run_id, criteria_version, per_criterion, aggregate, status, error, created_at
		 FROM evaluations WHERE id = $1`, id,
	)
	return scanEvaluation(row)
}

// ListEvaluationsByRun returns a run's evaluations, oldest first.
func (db *DB) ListEvaluationsByRun(ctx context.Context, runID uuid.UUID) ([]model.Evaluation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, criteria_version, per_criterion, aggregate, status, error, created_at
		 FROM evaluations WHERE run_id = $1
		 ORDER BY created_at ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list evaluations: %w", err)
	}
	defer rows.Close()

	var evals []model.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}

func scanEvaluation(row rowScanner) (model.Evaluation, error) {
	var e model.Evaluation
	var per []byte
	if err := row.Scan(&e.ID, &e.RunID, &e.CriteriaVersion, &per,
		&e.Aggregate, &e.Status, &e.Error, &e.CreatedAt); err != nil {
		return model.Evaluation{}, fmt.Errorf("storage: evaluation: %w", classify(err))
	}
	if len(per) > 0 {
		if err := json.Unmarshal(per, &e.PerCriterion); err != nil {
			return model.Evaluation{}, fmt.Errorf("storage: unmarshal evaluation results: %w", err)
		}
	}
	return e, nil
}

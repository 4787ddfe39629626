package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
)

// InsertSnapshot persists a new criteria snapshot. The (prompt_id, version)
// unique index rejects a concurrent save that claimed the same version with
// model.ErrConflict; prior versions are never overwritten.
func (db *DB) InsertSnapshot(ctx context.Context, s model.CriteriaSnapshot) error {
	items, err := json.Marshal(s.Items)
	if err != nil {
		return fmt.Errorf("storage: marshal criteria items: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO criteria_snapshots (id, prompt_id, version, items, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.PromptID, s.Version, items, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert criteria snapshot v%d: %w", s.Version, classify(err))
	}
	return nil
}

// CurrentSnapshot returns the latest criteria snapshot for a prompt.
func (db *DB) CurrentSnapshot(ctx context.Context, promptID uuid.UUID) (model.CriteriaSnapshot, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, prompt_id, version, items, created_at
		 FROM criteria_snapshots WHERE prompt_id = $1
		 ORDER BY version DESC LIMIT 1`, promptID,
	)
	return scanSnapshot(row, "current snapshot")
}

// GetSnapshot returns one criteria snapshot by prompt and version.
func (db *DB) GetSnapshot(ctx context.Context, promptID uuid.UUID, version int) (model.CriteriaSnapshot, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, prompt_id, version, items, created_at
		 FROM criteria_snapshots WHERE prompt_id = $1 AND version = $2`, promptID, version,
	)
	return scanSnapshot(row, fmt.Sprintf("snapshot v%d", version))
}

// ListSnapshotVersions returns all snapshot versions for a prompt ascending.
func (db *DB) ListSnapshotVersions(ctx context.Context, promptID uuid.UUID) ([]model.CriteriaSnapshot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, prompt_id, version, items, created_at
		 FROM criteria_snapshots WHERE prompt_id = $1
		 ORDER BY version ASC`, promptID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []model.CriteriaSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows, "snapshot")
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner, what string) (model.CriteriaSnapshot, error) {
	var s model.CriteriaSnapshot
	var items []byte
	if err := row.Scan(&s.ID, &s.PromptID, &s.Version, &items, &s.CreatedAt); err != nil {
		return model.CriteriaSnapshot{}, fmt.Errorf("storage: %s: %w", what, classify(err))
	}
	if err := json.Unmarshal(items, &s.Items); err != nil {
		return model.CriteriaSnapshot{}, fmt.Errorf("storage: unmarshal criteria items: %w", err)
	}
	return s, nil
}

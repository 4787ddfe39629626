package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/reprise-ai/reprise/internal/model"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
// The (prompt_id, seq) and (prompt_id, version) unique indexes turn
// optimistic-sequencing races into this error class.
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// classify maps driver-level errors onto the domain taxonomy. Anything
// unrecognized (connectivity, syntax) propagates unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return model.ErrNotFound
	case isUniqueViolation(err):
		return model.ErrConflict
	default:
		return err
	}
}

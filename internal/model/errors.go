package model

import "errors"

// Domain error taxonomy. Callers classify failures with errors.Is; the HTTP
// layer maps each to a status code. Wrapping preserves the operation context:
//
//	fmt.Errorf("criteria: duplicate key %q: %w", key, ErrValidation)
var (
	// ErrValidation marks malformed input: bad weights, duplicate criterion
	// keys, empty criteria sets, cross-prompt rollback targets. No state change.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown prompt, event, run, or criteria version.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a lost optimistic-sequencing race on append. The
	// caller should re-read the log and retry. No partial write occurred.
	ErrConflict = errors.New("sequence conflict")

	// ErrGeneration marks a failure of the external generation function.
	// The run that observed it is still persisted with a failed status.
	ErrGeneration = errors.New("generation error")

	// ErrJudge marks a failure of the external judge function. The
	// evaluation that observed it is still persisted with a failed status.
	ErrJudge = errors.New("judge error")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

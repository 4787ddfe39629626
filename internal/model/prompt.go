// Package model defines the core domain types for Reprise.
//
// All types correspond directly to database tables. Types use strong typing
// (UUIDs, time.Time, enums) and avoid interface{} wherever possible. Events,
// runs, criteria snapshots, and evaluations are immutable once written.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxPromptNameLen bounds the prompt name column.
const MaxPromptNameLen = 255

// MaxTextLen bounds prompt text, input text, and notes flowing into
// Postgres TEXT columns from caller-controlled request bodies.
const (
	MaxTextLen = 256 * 1024 // 256 KB
	MaxNoteLen = 255
)

// Prompt is identity only. All content is derived from the event log,
// never stored on the prompt itself.
type Prompt struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// EventKind is the category of a prompt mutation event.
type EventKind string

const (
	// KindSetFullText replaces the materialized text wholesale.
	KindSetFullText EventKind = "SET_FULL_TEXT"

	// KindRollback re-derives the materialization at TargetSeq. The text
	// reconstructed at the target is captured into Text at append time, so
	// later rollbacks stay reproducible even as the log grows.
	KindRollback EventKind = "ROLLBACK"
)

// Event is one entry in a prompt's append-only log. Source of truth for
// prompt text. Never mutated or deleted; totally ordered per prompt by Seq.
type Event struct {
	PromptID  uuid.UUID `json:"prompt_id"`
	Seq       int64     `json:"seq"`
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text"`
	TargetSeq *int64    `json:"target_seq,omitempty"`
	Note      string    `json:"note,omitempty"`

	// PrevHash/ContentHash chain each event to its predecessor so the log
	// is tamper-evident. Computed at append time, verified on demand.
	PrevHash    string `json:"prev_hash,omitempty"`
	ContentHash string `json:"content_hash"`

	CreatedAt time.Time `json:"created_at"`
}

// ValidatePromptName checks the prompt name length and non-emptiness.
func ValidatePromptName(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if len(name) > MaxPromptNameLen {
		return fmt.Errorf("name exceeds maximum length of %d: %w", MaxPromptNameLen, ErrValidation)
	}
	return nil
}

// ValidateEventInput checks an edit event before it reaches the store.
// Only SET_FULL_TEXT may be appended directly; ROLLBACK events are created
// by the rollback coordinator, never by callers.
func ValidateEventInput(kind EventKind, text, note string) error {
	if kind != KindSetFullText {
		return fmt.Errorf("kind must be %s: %w", KindSetFullText, ErrValidation)
	}
	if len(text) > MaxTextLen {
		return fmt.Errorf("text exceeds maximum length of %d bytes: %w", MaxTextLen, ErrValidation)
	}
	if len(note) > MaxNoteLen {
		return fmt.Errorf("note exceeds maximum length of %d: %w", MaxNoteLen, ErrValidation)
	}
	return nil
}

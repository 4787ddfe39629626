package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal state of a run. Every run reaches exactly one;
// failed and cancelled generations are persisted, never dropped, so the
// provenance of the attempt survives.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run is one immutable execution of a prompt against an input.
// PromptEventSeq and CriteriaVersion are captured before the generation
// function is invoked and never change afterwards; they are the audit
// anchor that makes later evaluation reproducible.
type Run struct {
	ID              uuid.UUID      `json:"id"`
	PromptID        uuid.UUID      `json:"prompt_id"`
	PromptEventSeq  int64          `json:"prompt_event_seq"`
	CriteriaVersion int            `json:"criteria_version"`
	InputText       string         `json:"input_text"`
	OutputText      string         `json:"output_text"`
	Model           string         `json:"model"`
	Params          map[string]any `json:"params,omitempty"`
	Status          RunStatus      `json:"status"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

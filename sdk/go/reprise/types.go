package reprise

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the type of a prompt event.
type EventKind string

const (
	// EventSetFullText replaces the entire prompt text.
	EventSetFullText EventKind = "SET_FULL_TEXT"
	// EventRollback restores the text that was current at an earlier event.
	EventRollback EventKind = "ROLLBACK"
)

// Prompt is a versioned prompt document together with its current text.
type Prompt struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
	LatestSeq int64     `json:"latest_seq"`
}

// Event is one entry in a prompt's append-only history.
type Event struct {
	PromptID    uuid.UUID `json:"prompt_id"`
	Seq         int64     `json:"seq"`
	Kind        EventKind `json:"kind"`
	Text        string    `json:"text"`
	TargetSeq   *int64    `json:"target_seq,omitempty"`
	Note        string    `json:"note,omitempty"`
	PrevHash    string    `json:"prev_hash,omitempty"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// TextProjection is the prompt text materialized at a point in its history.
type TextProjection struct {
	PromptID uuid.UUID `json:"prompt_id"`
	Text     string    `json:"text"`
	AsOfSeq  int64     `json:"as_of_seq"`
}

// IntegrityReport is the result of verifying a prompt's event hash chain.
type IntegrityReport struct {
	PromptID  uuid.UUID `json:"prompt_id"`
	Events    int       `json:"events"`
	ChainOK   bool      `json:"chain_ok"`
	BrokenSeq *int64    `json:"broken_seq,omitempty"`
	HeadHash  string    `json:"head_hash,omitempty"`
}

// CriterionType distinguishes pass/fail criteria from scored ones.
type CriterionType string

const (
	CriterionBoolean CriterionType = "boolean"
	CriterionScore   CriterionType = "score"
)

// CriterionItem is one evaluation criterion within a snapshot.
type CriterionItem struct {
	Key       string        `json:"key"`
	Desc      string        `json:"desc"`
	Type      CriterionType `json:"type"`
	Weight    float64       `json:"weight"`
	Reference string        `json:"reference,omitempty"`
}

// CriteriaSnapshot is an immutable versioned set of criteria for a prompt.
type CriteriaSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	PromptID  uuid.UUID       `json:"prompt_id"`
	Version   int             `json:"version"`
	Items     []CriterionItem `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is one execution of a prompt against input text. PromptEventSeq and
// CriteriaVersion record exactly which prompt version and criteria set were
// current when the run started.
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

// CriterionResult is the verdict for one criterion within an evaluation.
type CriterionResult struct {
	Key    string        `json:"key"`
	Type   CriterionType `json:"type"`
	Passed *bool         `json:"passed,omitempty"`
	Score  *float64      `json:"score,omitempty"`
	Weight float64       `json:"weight"`
	Reason string        `json:"reason,omitempty"`
}

// Evaluation scores a run's output against the criteria version the run
// was bound to.
type Evaluation struct {
	ID              uuid.UUID         `json:"id"`
	RunID           uuid.UUID         `json:"run_id"`
	CriteriaVersion int               `json:"criteria_version"`
	PerCriterion    []CriterionResult `json:"per_criterion"`
	Aggregate       float64           `json:"aggregate"`
	Status          string            `json:"status"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Review is model-generated guidance on how to improve a prompt, grounded
// in a run and its evaluation.
type Review struct {
	RunID    uuid.UUID `json:"run_id"`
	Guidance string    `json:"guidance"`
	Model    string    `json:"model"`
}

// Health is the server's health status.
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Postgres  string `json:"postgres"`
	Generator string `json:"generator"`
	Uptime    int64  `json:"uptime_seconds"`
}

// CreatePromptRequest is the request body for CreatePrompt.
type CreatePromptRequest struct {
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
}

// CreateRunRequest is the request body for CreateRun.
type CreateRunRequest struct {
	PromptID  uuid.UUID      `json:"prompt_id"`
	InputText string         `json:"input_text"`
	Model     string         `json:"model,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeGeneration    = "GENERATION_FAILED"
	ErrCodeJudge         = "JUDGE_FAILED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// CreatePromptRequest is the request body for POST /v1/prompts.
type CreatePromptRequest struct {
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
}

// PromptResponse is a prompt together with its materialized text.
type PromptResponse struct {
	Prompt
	Text      string `json:"text"`
	LatestSeq int64  `json:"latest_seq"`
}

// AppendEventRequest is the request body for POST /v1/prompts/{id}/events.
type AppendEventRequest struct {
	Kind EventKind `json:"kind"`
	Text string    `json:"text"`
	Note string    `json:"note,omitempty"`
}

// RollbackRequest is the request body for POST /v1/prompts/{id}/rollback.
type RollbackRequest struct {
	TargetEventSeq int64  `json:"target_event_seq"`
	Note           string `json:"note,omitempty"`
}

// SaveCriteriaRequest is the request body for PUT /v1/prompts/{id}/criteria.
type SaveCriteriaRequest struct {
	Items []CriterionItem `json:"items"`
}

// CreateRunRequest is the request body for POST /v1/runs.
type CreateRunRequest struct {
	PromptID  uuid.UUID      `json:"prompt_id"`
	InputText string         `json:"input_text"`
	Model     string         `json:"model,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// IntegrityResponse is the response for GET /v1/prompts/{id}/integrity.
type IntegrityResponse struct {
	PromptID  uuid.UUID `json:"prompt_id"`
	Events    int       `json:"events"`
	ChainOK   bool      `json:"chain_ok"`
	BrokenSeq *int64    `json:"broken_seq,omitempty"`
	HeadHash  string    `json:"head_hash,omitempty"`
}

// ReviewResponse is the response for POST /v1/runs/{id}/review.
type ReviewResponse struct {
	RunID    uuid.UUID `json:"run_id"`
	Guidance string    `json:"guidance"`
	Model    string    `json:"model"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Postgres  string `json:"postgres"`
	Generator string `json:"generator"`
	Uptime    int64  `json:"uptime_seconds"`
}

package reprise

import "context"

// GenerationRequest is a single generation call against a stored prompt.
type GenerationRequest struct {
	// PromptText is the projected prompt document text.
	PromptText string
	// InputText is the caller-supplied input for this run.
	InputText string
	// Model overrides the backend's default model when non-empty.
	Model string
	// Params carries backend-specific options (temperature, max_tokens).
	Params map[string]any
}

// GenerationResult is the outcome of a generation call.
type GenerationResult struct {
	OutputText string
	Model      string
}

// Generator produces model output for runs and meta-review.
// When provided via WithGenerator, replaces the auto-detected backend
// (Ollama/OpenAI/static). Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (GenerationResult, error)

	// Name identifies the backend for logging and health reporting.
	Name() string
}

// JudgeInput is a single criterion judgement call.
type JudgeInput struct {
	// Criterion fields from the bound snapshot.
	Key       string
	Desc      string
	Boolean   bool
	Reference string

	// Run context.
	PromptText string
	InputText  string
	OutputText string
}

// JudgeVerdict is the outcome of judging one criterion.
// Passed is set for boolean criteria, Score for score criteria.
type JudgeVerdict struct {
	Passed *bool
	Score  *float64
	Reason string
}

// Judge scores run output against one criterion.
// When provided via WithJudge, replaces the configured rule or model judge.
// The evaluator calls Judge concurrently, one call per criterion.
type Judge interface {
	Judge(ctx context.Context, in JudgeInput) (JudgeVerdict, error)

	// Name identifies the backend for logging.
	Name() string
}

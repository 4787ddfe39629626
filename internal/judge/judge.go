// Package judge scores run output against individual criteria.
//
// Defines a Judge interface with a deterministic rule-based implementation
// and a model-backed implementation. The evaluator calls one Judge per
// criterion and aggregates the results.
package judge

import "context"

// Input is a single criterion judgement call.
type Input struct {
	// Criterion fields.
	Key       string
	Desc      string
	Boolean   bool
	Reference string

	// Run context.
	PromptText string
	InputText  string
	OutputText string
}

// Verdict is the outcome of judging one criterion.
type Verdict struct {
	// Passed is set for boolean criteria.
	Passed *bool
	// Score in [0,1] is set for score criteria.
	Score *float64
	// Reason is a short human-readable explanation.
	Reason string
}

// Judge scores output text against one criterion.
type Judge interface {
	Judge(ctx context.Context, in Input) (Verdict, error)

	// Name identifies the backend for logging.
	Name() string
}

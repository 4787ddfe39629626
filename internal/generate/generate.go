// Package generate produces model output for prompt runs.
//
// Defines a Generator interface with OpenAI-compatible, Ollama, and static
// implementations. The interface allows swapping generation backends without
// changing the run executor.
package generate

import (
	"context"
	"fmt"
	"strings"
)

// Request is a single generation call.
type Request struct {
	// PromptText is the projected prompt document text.
	PromptText string
	// InputText is the caller-supplied input for this run.
	InputText string
	// Model overrides the provider's default model when non-empty.
	Model string
	// Params carries provider-specific options (temperature, max_tokens).
	Params map[string]any
}

// Result is the outcome of a generation call.
type Result struct {
	OutputText string
	Model      string
}

// Generator produces output text from a prompt and input.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)

	// Name identifies the backend for logging and health reporting.
	Name() string
}

// systemPreamble frames every generation call the same way so output quality
// is comparable across prompt versions.
const systemPreamble = "You are an assistant executing a stored prompt against user input. " +
	"Follow the prompt exactly and answer only with the result."

// composeUser builds the user message from the prompt document and run input.
func composeUser(promptText, inputText string) string {
	var b strings.Builder
	b.WriteString("[PROMPT]\n")
	b.WriteString(promptText)
	b.WriteString("\n\n[INPUT]\n")
	b.WriteString(inputText)
	return b.String()
}

// maxAttempts bounds retries against a flaky generation backend.
const maxAttempts = 3

// withRetry calls fn up to maxAttempts times, stopping early on success or
// context cancellation.
func withRetry(ctx context.Context, fn func() (Result, error)) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}
	return Result{}, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

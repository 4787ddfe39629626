package generate

import (
	"context"
	"strings"
)

// StaticGenerator echoes a deterministic transform of its input. Used when no
// generation backend is configured, and in tests where real model calls are
// unwanted.
type StaticGenerator struct{}

// NewStaticGenerator creates a generator that needs no external services.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

// Name identifies the backend.
func (g *StaticGenerator) Name() string { return "static" }

// Generate returns the input rewritten under the first line of the prompt.
// Deterministic so repeated runs against the same prompt version and input
// produce identical output.
func (g *StaticGenerator) Generate(_ context.Context, req Request) (Result, error) {
	header, _, _ := strings.Cut(strings.TrimSpace(req.PromptText), "\n")
	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimSpace(req.InputText))
	return Result{OutputText: b.String(), Model: "static"}, nil
}

package eval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/generate"
	"github.com/reprise-ai/reprise/internal/model"
)

// reviewPreamble frames the meta-review call. The goal is transferable
// guidance, not a rewrite overfitted to one input.
const reviewPreamble = "You produce meta-prompts that improve an existing prompt without overfitting. " +
	"Explain what specific phrases could be added to or deleted from the prompt to more consistently " +
	"elicit the desired behavior or prevent the undesired behavior."

// Review asks a generation backend for guidance on improving the prompt,
// grounded in the run's output and its latest evaluation results.
func (s *Service) Review(ctx context.Context, gen generate.Generator, runID uuid.UUID) (model.ReviewResponse, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return model.ReviewResponse{}, fmt.Errorf("review: %w", err)
	}
	evals, err := s.store.ListEvaluationsByRun(ctx, runID)
	if err != nil {
		return model.ReviewResponse{}, fmt.Errorf("review: %w", err)
	}
	if len(evals) == 0 {
		return model.ReviewResponse{}, fmt.Errorf("run %s has no evaluation to review: %w", runID, model.ErrNotFound)
	}
	latest := evals[len(evals)-1]

	details, err := json.MarshalIndent(latest.PerCriterion, "", "  ")
	if err != nil {
		return model.ReviewResponse{}, fmt.Errorf("review: marshal results: %w", err)
	}

	res, err := gen.Generate(ctx, generate.Request{
		PromptText: reviewPreamble,
		InputText: fmt.Sprintf("Output:\n%s\n\nEvaluation results:\n%s\n\nReturn improved guidance as bullet points.",
			run.OutputText, details),
	})
	if err != nil {
		return model.ReviewResponse{}, fmt.Errorf("review run %s: %v: %w", runID, err, model.ErrGeneration)
	}
	return model.ReviewResponse{RunID: runID, Guidance: res.OutputText, Model: res.Model}, nil
}

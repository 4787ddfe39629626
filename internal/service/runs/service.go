// Package runs executes prompts against inputs and records the results.
//
// A run captures its provenance (prompt event sequence and criteria version)
// before generation starts, so every recorded output is attributable to an
// exact prompt state even if the prompt advances mid-flight.
package runs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/reprise-ai/reprise/internal/generate"
	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/projection"
	"github.com/reprise-ai/reprise/internal/telemetry"
)

// Store is the storage surface the run service depends on.
type Store interface {
	GetPrompt(ctx context.Context, id uuid.UUID) (model.Prompt, error)
	ListEvents(ctx context.Context, promptID uuid.UUID) ([]model.Event, error)
	CurrentSnapshot(ctx context.Context, promptID uuid.UUID) (model.CriteriaSnapshot, error)
	InsertRun(ctx context.Context, r model.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (model.Run, error)
	ListRunsByPrompt(ctx context.Context, promptID uuid.UUID, limit int) ([]model.Run, error)
}

// Service executes runs against the configured generation backend.
type Service struct {
	store  Store
	gen    generate.Generator
	logger *slog.Logger

	runDuration metric.Float64Histogram
	runsByState metric.Int64Counter
}

// New creates a new run Service.
func New(store Store, gen generate.Generator, logger *slog.Logger) *Service {
	meter := telemetry.Meter("reprise/runs")
	dur, _ := meter.Float64Histogram("reprise.run.duration",
		metric.WithDescription("Wall-clock generation time per run (ms)"),
		metric.WithUnit("ms"),
	)
	byState, _ := meter.Int64Counter("reprise.run.total",
		metric.WithDescription("Runs recorded, by terminal status"),
	)
	return &Service{
		store:       store,
		gen:         gen,
		logger:      logger,
		runDuration: dur,
		runsByState: byState,
	}
}

// Input contains the data needed to execute a run.
type Input struct {
	PromptID  uuid.UUID
	InputText string
	Model     string
	Params    map[string]any
}

// Execute runs the prompt's current text against the input.
//
// Provenance is snapshotted before generation and no locks are held while the
// backend works; concurrent prompt edits proceed freely. The run row is
// persisted with WithoutCancel so failed and cancelled runs still leave a
// record.
func (s *Service) Execute(ctx context.Context, in Input) (model.Run, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("reprise.prompt_id", in.PromptID.String()))

	if in.InputText == "" {
		return model.Run{}, fmt.Errorf("input_text is required: %w", model.ErrValidation)
	}
	if _, err := s.store.GetPrompt(ctx, in.PromptID); err != nil {
		return model.Run{}, fmt.Errorf("run: %w", err)
	}

	// Capture provenance before generation starts.
	events, err := s.store.ListEvents(ctx, in.PromptID)
	if err != nil {
		return model.Run{}, fmt.Errorf("run: %w", err)
	}
	if len(events) == 0 {
		return model.Run{}, fmt.Errorf("prompt %s has no events: %w", in.PromptID, model.ErrNotFound)
	}
	promptText := projection.Materialize(events)
	seq := projection.LatestSeq(events)

	criteriaVersion := 0
	if snap, err := s.store.CurrentSnapshot(ctx, in.PromptID); err == nil {
		criteriaVersion = snap.Version
	} else if !model.IsNotFound(err) {
		return model.Run{}, fmt.Errorf("run: %w", err)
	}

	run := model.Run{
		ID:              uuid.New(),
		PromptID:        in.PromptID,
		PromptEventSeq:  seq,
		CriteriaVersion: criteriaVersion,
		InputText:       in.InputText,
		Params:          in.Params,
		CreatedAt:       time.Now().UTC(),
	}

	start := time.Now()
	res, genErr := s.gen.Generate(ctx, generate.Request{
		PromptText: promptText,
		InputText:  in.InputText,
		Model:      in.Model,
		Params:     in.Params,
	})
	s.runDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	switch {
	case genErr == nil:
		run.Status = model.RunStatusCompleted
		run.OutputText = res.OutputText
		run.Model = res.Model
	case ctx.Err() != nil:
		run.Status = model.RunStatusCancelled
		run.Error = ctx.Err().Error()
	default:
		run.Status = model.RunStatusFailed
		run.Error = genErr.Error()
	}
	if run.Model == "" {
		run.Model = in.Model
	}
	s.runsByState.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", string(run.Status))))

	// Persist even when the request context was cancelled mid-generation.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.InsertRun(persistCtx, run); err != nil {
		return model.Run{}, fmt.Errorf("run: persist: %w", err)
	}

	if genErr != nil {
		s.logger.Warn("run finished abnormally",
			"run_id", run.ID, "prompt_id", in.PromptID, "status", run.Status, "error", run.Error)
		return run, fmt.Errorf("run %s: %v: %w", run.ID, genErr, model.ErrGeneration)
	}
	return run, nil
}

// Get returns one run by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Run, error) {
	return s.store.GetRun(ctx, id)
}

// ListByPrompt returns a prompt's runs, newest first.
func (s *Service) ListByPrompt(ctx context.Context, promptID uuid.UUID, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if _, err := s.store.GetPrompt(ctx, promptID); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return s.store.ListRunsByPrompt(ctx, promptID, limit)
}

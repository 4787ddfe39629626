// Package eval scores completed runs against their bound criteria snapshot.
//
// Evaluations always use the criteria version captured when the run was
// created, never the current version, so a run's score is reproducible no
// matter how the criteria evolve afterwards.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/reprise-ai/reprise/internal/judge"
	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/telemetry"
)

// Store is the storage surface the evaluation service depends on.
type Store interface {
	GetRun(ctx context.Context, id uuid.UUID) (model.Run, error)
	GetSnapshot(ctx context.Context, promptID uuid.UUID, version int) (model.CriteriaSnapshot, error)
	InsertEvaluation(ctx context.Context, e model.Evaluation) error
	ListEvaluationsByRun(ctx context.Context, runID uuid.UUID) ([]model.Evaluation, error)
}

// judgeConcurrency bounds parallel judge calls per evaluation. Kept low so a
// model-backed judge does not flood its backend.
const judgeConcurrency = 4

// Service evaluates run output criterion by criterion.
type Service struct {
	store  Store
	judge  judge.Judge
	logger *slog.Logger

	evalDuration metric.Float64Histogram
}

// New creates a new evaluation Service.
func New(store Store, j judge.Judge, logger *slog.Logger) *Service {
	meter := telemetry.Meter("reprise/eval")
	dur, _ := meter.Float64Histogram("reprise.eval.duration",
		metric.WithDescription("Time to evaluate one run (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{store: store, judge: j, logger: logger, evalDuration: dur}
}

// Evaluate scores a run against the criteria snapshot bound at its creation.
// Judge failures produce a persisted failed evaluation, not a dropped one.
func (s *Service) Evaluate(ctx context.Context, runID uuid.UUID) (model.Evaluation, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate: %w", err)
	}
	if run.Status != model.RunStatusCompleted {
		return model.Evaluation{}, fmt.Errorf("run %s has status %s, only completed runs are evaluable: %w",
			runID, run.Status, model.ErrValidation)
	}
	if run.CriteriaVersion == 0 {
		return model.Evaluation{}, fmt.Errorf("run %s was created before any criteria existed: %w",
			runID, model.ErrValidation)
	}

	snap, err := s.store.GetSnapshot(ctx, run.PromptID, run.CriteriaVersion)
	if err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate: criteria v%d: %w", run.CriteriaVersion, err)
	}

	start := time.Now()
	results, judgeErr := s.judgeAll(ctx, run, snap.Items)
	s.evalDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.Int("criteria", len(snap.Items))))

	e := model.Evaluation{
		ID:              uuid.New(),
		RunID:           runID,
		CriteriaVersion: run.CriteriaVersion,
		PerCriterion:    results,
		CreatedAt:       time.Now().UTC(),
	}
	if judgeErr != nil {
		e.Status = model.EvaluationStatusFailed
		e.Error = judgeErr.Error()
	} else {
		agg, err := model.Aggregate(results)
		if err != nil {
			return model.Evaluation{}, fmt.Errorf("evaluate: %w", err)
		}
		e.Status = model.EvaluationStatusCompleted
		e.Aggregate = agg
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.InsertEvaluation(persistCtx, e); err != nil {
		return model.Evaluation{}, fmt.Errorf("evaluate: persist: %w", err)
	}

	if judgeErr != nil {
		s.logger.Warn("evaluation failed", "run_id", runID, "error", judgeErr)
		return e, fmt.Errorf("evaluate run %s: %v: %w", runID, judgeErr, model.ErrJudge)
	}
	return e, nil
}

// judgeAll runs one judge call per criterion with bounded concurrency.
// Results land at their criterion's index so output order matches the
// snapshot regardless of completion order.
func (s *Service) judgeAll(ctx context.Context, run model.Run, items []model.CriterionItem) ([]model.CriterionResult, error) {
	results := make([]model.CriterionResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(judgeConcurrency)
	for i, item := range items {
		g.Go(func() error {
			v, err := s.judge.Judge(gctx, judge.Input{
				Key:        item.Key,
				Desc:       item.Desc,
				Boolean:    item.Type == model.CriterionBoolean,
				Reference:  item.Reference,
				InputText:  run.InputText,
				OutputText: run.OutputText,
			})
			if err != nil {
				return err
			}
			results[i] = model.CriterionResult{
				Key:    item.Key,
				Type:   item.Type,
				Passed: v.Passed,
				Score:  v.Score,
				Weight: item.Weight,
				Reason: v.Reason,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// ListByRun returns a run's evaluations, oldest first.
func (s *Service) ListByRun(ctx context.Context, runID uuid.UUID) ([]model.Evaluation, error) {
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return s.store.ListEvaluationsByRun(ctx, runID)
}

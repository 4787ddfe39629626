package eval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reprise-ai/reprise/internal/generate"
	"github.com/reprise-ai/reprise/internal/judge"
	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/service/eval"
	"github.com/reprise-ai/reprise/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

// fixedJudge returns one verdict for every criterion.
type fixedJudge struct {
	passed *bool
	score  *float64
	err    error
}

func (j *fixedJudge) Judge(_ context.Context, in judge.Input) (judge.Verdict, error) {
	if j.err != nil {
		return judge.Verdict{}, j.err
	}
	if in.Boolean {
		return judge.Verdict{Passed: j.passed, Reason: "fixed"}, nil
	}
	return judge.Verdict{Score: j.score, Reason: "fixed"}, nil
}

func (j *fixedJudge) Name() string { return "fixed" }

// seedRun inserts a run and its bound criteria snapshot directly.
func seedRun(t *testing.T, store *testutil.MemStore, status model.RunStatus, criteriaVersion int, items []model.CriterionItem) model.Run {
	t.Helper()
	ctx := context.Background()
	promptID := uuid.New()

	if criteriaVersion > 0 {
		require.NoError(t, store.InsertSnapshot(ctx, model.CriteriaSnapshot{
			ID:        uuid.New(),
			PromptID:  promptID,
			Version:   criteriaVersion,
			Items:     items,
			CreatedAt: time.Now().UTC(),
		}))
	}

	run := model.Run{
		ID:              uuid.New(),
		PromptID:        promptID,
		PromptEventSeq:  1,
		CriteriaVersion: criteriaVersion,
		InputText:       "input",
		OutputText:      "- output bullet",
		Status:          status,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, store.InsertRun(ctx, run))
	return run
}

func TestEvaluateWeightedAggregate(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemStore()
	items := []model.CriterionItem{
		{Key: "format", Desc: "uses bullets", Type: model.CriterionBoolean, Weight: 2},
		{Key: "quality", Desc: "overall quality", Type: model.CriterionScore, Weight: 1},
	}
	run := seedRun(t, store, model.RunStatusCompleted, 1, items)

	j := &fixedJudge{passed: ptr(true), score: ptr(0.5)}
	svc := eval.New(store, j, testutil.TestLogger())

	e, err := svc.Evaluate(context.Background(), run.ID)
	require.NoError(t, err)

	assert.Equal(t, model.EvaluationStatusCompleted, e.Status)
	assert.Equal(t, 1, e.CriteriaVersion)
	// (2*1.0 + 1*0.5) / 3
	assert.InDelta(t, 0.8333, e.Aggregate, 0.0001)

	require.Len(t, e.PerCriterion, 2)
	assert.Equal(t, "format", e.PerCriterion[0].Key)
	assert.Equal(t, "quality", e.PerCriterion[1].Key)

	list, err := svc.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ID, list[0].ID)
}

func TestEvaluateUsesBoundVersionNotCurrent(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemStore()
	items := []model.CriterionItem{
		{Key: "only", Desc: "the one rule", Type: model.CriterionBoolean, Weight: 1},
	}
	run := seedRun(t, store, model.RunStatusCompleted, 1, items)

	// Criteria move on after the run was created.
	require.NoError(t, store.InsertSnapshot(context.Background(), model.CriteriaSnapshot{
		ID:       uuid.New(),
		PromptID: run.PromptID,
		Version:  2,
		Items: []model.CriterionItem{
			{Key: "a", Desc: "a", Type: model.CriterionBoolean, Weight: 1},
			{Key: "b", Desc: "b", Type: model.CriterionBoolean, Weight: 1},
			{Key: "c", Desc: "c", Type: model.CriterionBoolean, Weight: 1},
		},
		CreatedAt: time.Now().UTC(),
	}))

	svc := eval.New(store, &fixedJudge{passed: ptr(true)}, testutil.TestLogger())

	e, err := svc.Evaluate(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CriteriaVersion)
	assert.Len(t, e.PerCriterion, 1)
}

func TestEvaluateRejectsNonCompletedRun(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemStore()
	run := seedRun(t, store, model.RunStatusFailed, 1, []model.CriterionItem{
		{Key: "k", Desc: "d", Type: model.CriterionBoolean, Weight: 1},
	})
	svc := eval.New(store, &fixedJudge{passed: ptr(true)}, testutil.TestLogger())

	_, err := svc.Evaluate(context.Background(), run.ID)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestEvaluateRejectsRunWithoutCriteria(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemStore()
	run := seedRun(t, store, model.RunStatusCompleted, 0, nil)
	svc := eval.New(store, &fixedJudge{passed: ptr(true)}, testutil.TestLogger())

	_, err := svc.Evaluate(context.Background(), run.ID)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestEvaluateUnknownRun(t *testing.T) {
	t.Parallel()

	svc := eval.New(testutil.NewMemStore(), &fixedJudge{}, testutil.TestLogger())

	_, err := svc.Evaluate(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEvaluatePersistsJudgeFailure(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemStore()
	run := seedRun(t, store, model.RunStatusCompleted, 1, []model.CriterionItem{
		{Key: "k", Desc: "d", Type: model.CriterionBoolean, Weight: 1},
	})
	svc := eval.New(store, &fixedJudge{err: errors.New("judge backend down")}, testutil.TestLogger())

	e, err := svc.Evaluate(context.Background(), run.ID)
	require.ErrorIs(t, err, model.ErrJudge)
	assert.Equal(t, model.EvaluationStatusFailed, e.Status)
	assert.Contains(t, e.Error, "judge backend down")

	// The failed evaluation is on record.
	list, listErr := svc.ListByRun(context.Background(), run.ID)
	require.NoError(t, listErr)
	require.Len(t, list, 1)
	assert.Equal(t, model.EvaluationStatusFailed, list[0].Status)
}

// reviewGenerator captures the composed review request.
type reviewGenerator struct {
	out  string
	last generate.Request
}

func (g *reviewGenerator) Generate(_ context.Context, req generate.Request) (generate.Result, error) {
	g.last = req
	return generate.Result{OutputText: g.out, Model: "review-model"}, nil
}

func (g *reviewGenerator) Name() string { return "review" }

func TestReviewGroundsInLatestEvaluation(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemStore()
	run := seedRun(t, store, model.RunStatusCompleted, 1, []model.CriterionItem{
		{Key: "format", Desc: "uses bullets", Type: model.CriterionBoolean, Weight: 1},
	})
	svc := eval.New(store, &fixedJudge{passed: ptr(false)}, testutil.TestLogger())

	_, err := svc.Evaluate(context.Background(), run.ID)
	require.NoError(t, err)

	gen := &reviewGenerator{out: "- add a formatting instruction"}
	res, err := svc.Review(context.Background(), gen, run.ID)
	require.NoError(t, err)

	assert.Equal(t, run.ID, res.RunID)
	assert.Equal(t, "- add a formatting instruction", res.Guidance)
	assert.Equal(t, "review-model", res.Model)

	// The request carries the run output and per-criterion results.
	assert.Contains(t, gen.last.InputText, run.OutputText)
	assert.Contains(t, gen.last.InputText, "format")
}

func TestReviewRequiresEvaluation(t *testing.T) {
	t.Parallel()

	store := testutil.NewMemStore()
	run := seedRun(t, store, model.RunStatusCompleted, 1, []model.CriterionItem{
		{Key: "k", Desc: "d", Type: model.CriterionBoolean, Weight: 1},
	})
	svc := eval.New(store, &fixedJudge{passed: ptr(true)}, testutil.TestLogger())

	_, err := svc.Review(context.Background(), &reviewGenerator{}, run.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

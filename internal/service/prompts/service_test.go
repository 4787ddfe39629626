package prompts_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/service/prompts"
	"github.com/reprise-ai/reprise/internal/testutil"
)

func newService(t *testing.T) (*prompts.Service, *testutil.MemStore) {
	t.Helper()
	store := testutil.NewMemStore()
	return prompts.New(store, testutil.TestLogger()), store
}

func TestCreateBootstrapsEventLog(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "summarizer", "Summarize the input.")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.ID)

	events, err := svc.Events(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, model.KindSetFullText, events[0].Kind)
	assert.Equal(t, "Summarize the input.", events[0].Text)
	assert.Equal(t, "init", events[0].Note)
	assert.NotEmpty(t, events[0].ContentHash)
	assert.Empty(t, events[0].PrevHash)
}

func TestCreateRejectsBadName(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), "", "text")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Create(context.Background(), strings.Repeat("x", 300), "text")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestCreateRejectsOversizedText(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	_, err := svc.Create(context.Background(), "big", strings.Repeat("a", model.MaxTextLen+1))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAppendTextAssignsSequencesAndChains(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)

	e2, err := svc.AppendText(ctx, p.ID, "v2", "tighten wording")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Seq)

	e3, err := svc.AppendText(ctx, p.ID, "v3", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), e3.Seq)
	assert.Equal(t, e2.ContentHash, e3.PrevHash)

	_, text, latest, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "v3", text)
	assert.Equal(t, int64(3), latest)
}

func TestAppendTextUnknownPrompt(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	_, err := svc.AppendText(context.Background(), uuid.New(), "text", "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTextAtProjectsHistoricalState(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)
	_, err = svc.AppendText(ctx, p.ID, "v2", "")
	require.NoError(t, err)
	_, err = svc.AppendText(ctx, p.ID, "v3", "")
	require.NoError(t, err)

	text, at, err := svc.TextAt(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "v2", text)
	assert.Equal(t, int64(2), at)

	// at <= 0 means latest.
	text, at, err = svc.TextAt(ctx, p.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "v3", text)
	assert.Equal(t, int64(3), at)

	_, _, err = svc.TextAt(ctx, p.ID, 99)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRollbackRestoresTargetState(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)
	_, err = svc.AppendText(ctx, p.ID, "v2", "")
	require.NoError(t, err)
	_, err = svc.AppendText(ctx, p.ID, "v3", "")
	require.NoError(t, err)

	rb, err := svc.Rollback(ctx, p.ID, 1, "revert experiment")
	require.NoError(t, err)
	assert.Equal(t, int64(4), rb.Seq)
	assert.Equal(t, model.KindRollback, rb.Kind)
	require.NotNil(t, rb.TargetSeq)
	assert.Equal(t, int64(1), *rb.TargetSeq)

	_, text, latest, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", text)
	assert.Equal(t, int64(4), latest)
}

func TestRollbackRejectsBadTargets(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)

	_, err = svc.Rollback(ctx, p.ID, 7, "")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// Rolling back to the head itself is a no-op and rejected.
	_, err = svc.Rollback(ctx, p.ID, 1, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRollbackOfRollback(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)
	_, err = svc.AppendText(ctx, p.ID, "v2", "")
	require.NoError(t, err)
	_, err = svc.Rollback(ctx, p.ID, 1, "")
	require.NoError(t, err)
	_, err = svc.AppendText(ctx, p.ID, "v4", "")
	require.NoError(t, err)

	// Rolling back to the earlier rollback lands on its derived state.
	_, err = svc.Rollback(ctx, p.ID, 3, "")
	require.NoError(t, err)

	_, text, _, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", text)
}

func TestVerifyIntegrity(t *testing.T) {
	t.Parallel()

	svc, store := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)
	_, err = svc.AppendText(ctx, p.ID, "v2", "")
	require.NoError(t, err)

	res, err := svc.VerifyIntegrity(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, res.ChainOK)
	assert.Nil(t, res.BrokenSeq)
	assert.Equal(t, 2, res.Events)
	assert.NotEmpty(t, res.HeadHash)

	// Tamper with a stored event; verification must flag the sequence.
	e, err := store.GetEvent(ctx, p.ID, 2)
	require.NoError(t, err)
	e.Text = "edited"
	e.Seq = 3
	require.NoError(t, store.AppendEvent(ctx, e))

	res, err = svc.VerifyIntegrity(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, res.ChainOK)
	require.NotNil(t, res.BrokenSeq)
	assert.Equal(t, int64(3), *res.BrokenSeq)
}

func TestSaveCriteriaVersioning(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)

	items := []model.CriterionItem{
		{Key: "concise", Desc: "response is concise", Type: model.CriterionBoolean, Weight: 1},
	}
	s1, err := svc.SaveCriteria(ctx, p.ID, items)
	require.NoError(t, err)
	assert.Equal(t, 1, s1.Version)

	items = append(items, model.CriterionItem{
		Key: "accuracy", Desc: "matches the reference", Type: model.CriterionScore, Weight: 2,
	})
	s2, err := svc.SaveCriteria(ctx, p.ID, items)
	require.NoError(t, err)
	assert.Equal(t, 2, s2.Version)

	// Earlier versions stay readable and unchanged.
	got, err := svc.CriteriaVersion(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	current, err := svc.Criteria(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, current.Version)

	versions, err := svc.CriteriaVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
}

func TestSaveCriteriaAllOrNothing(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "p", "v1")
	require.NoError(t, err)

	_, err = svc.SaveCriteria(ctx, p.ID, []model.CriterionItem{
		{Key: "ok", Desc: "fine", Type: model.CriterionBoolean, Weight: 1},
		{Key: "bad", Desc: "zero weight", Type: model.CriterionScore, Weight: 0},
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = svc.Criteria(ctx, p.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

package projection_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/projection"
)

func ptr[T any](v T) *T { return &v }

func setText(seq int64, text string) model.Event {
	return model.Event{PromptID: uuid.Nil, Seq: seq, Kind: model.KindSetFullText, Text: text}
}

func rollback(seq, target int64) model.Event {
	return model.Event{PromptID: uuid.Nil, Seq: seq, Kind: model.KindRollback, TargetSeq: ptr(target)}
}

func TestMaterializeEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", projection.Materialize(nil))
}

func TestMaterializeReplacesWholesale(t *testing.T) {
	t.Parallel()
	events := []model.Event{
		setText(1, "v1"),
		setText(2, "v2"),
		setText(3, "v3"),
	}
	assert.Equal(t, "v3", projection.Materialize(events))
	assert.Equal(t, "v1", projection.MaterializeAt(events, 1))
	assert.Equal(t, "v2", projection.MaterializeAt(events, 2))
}

func TestMaterializeAtIgnoresLaterEvents(t *testing.T) {
	t.Parallel()
	events := []model.Event{
		setText(1, "v1"),
		setText(2, "v2"),
	}
	assert.Equal(t, "v1", projection.MaterializeAt(events, 1))
}

func TestRollbackRestoresTargetState(t *testing.T) {
	t.Parallel()
	events := []model.Event{
		setText(1, "v1"),
		setText(2, "v2"),
		setText(3, "v3"),
		rollback(4, 2),
	}
	assert.Equal(t, "v2", projection.Materialize(events))
	// History before the rollback is untouched.
	assert.Equal(t, "v3", projection.MaterializeAt(events, 3))
}

func TestAppendAfterRollback(t *testing.T) {
	t.Parallel()
	events := []model.Event{
		setText(1, "v1"),
		setText(2, "v2"),
		rollback(3, 1),
		setText(4, "v4"),
	}
	assert.Equal(t, "v4", projection.Materialize(events))
	assert.Equal(t, "v1", projection.MaterializeAt(events, 3))
}

func TestRollbackOfRollback(t *testing.T) {
	t.Parallel()
	// seq5 targets seq3, itself a rollback to seq1: the fold re-derives
	// the prefix, so the result is the state as of seq3, which is v1.
	events := []model.Event{
		setText(1, "v1"),
		setText(2, "v2"),
		rollback(3, 1),
		setText(4, "v4"),
		rollback(5, 3),
	}
	assert.Equal(t, "v1", projection.Materialize(events))
}

func TestRollbackToRollbackTargetsDerivedState(t *testing.T) {
	t.Parallel()
	// Rolling back to a point after a prior rollback lands on that
	// rollback's derived state, not the raw event payload.
	events := []model.Event{
		setText(1, "a"),
		setText(2, "b"),
		rollback(3, 1),
		rollback(4, 2),
		rollback(5, 3),
	}
	assert.Equal(t, "b", projection.MaterializeAt(events, 4))
	assert.Equal(t, "a", projection.Materialize(events))
}

func TestMalformedRollbackFallsBackToCapturedText(t *testing.T) {
	t.Parallel()
	events := []model.Event{
		setText(1, "v1"),
		{Seq: 2, Kind: model.KindRollback, Text: "captured", TargetSeq: nil},
	}
	assert.Equal(t, "captured", projection.Materialize(events))
}

func TestLatestSeq(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int64(0), projection.LatestSeq(nil))
	assert.Equal(t, int64(3), projection.LatestSeq([]model.Event{
		setText(1, "a"), setText(2, "b"), setText(3, "c"),
	}))
}

func TestFindSeq(t *testing.T) {
	t.Parallel()
	events := []model.Event{setText(1, "a"), setText(2, "b")}

	e, ok := projection.FindSeq(events, 2)
	assert.True(t, ok)
	assert.Equal(t, "b", e.Text)

	_, ok = projection.FindSeq(events, 9)
	assert.False(t, ok)
}

// Package projection folds a prompt's event log into materialized text.
// All functions are pure and deterministic: the same event prefix always
// yields the same text, with no side effects.
package projection

import "github.com/reprise-ai/reprise/internal/model"

// Materialize folds the full event sequence into the current prompt text.
// Events must be in ascending Seq order, as returned by the store.
func Materialize(events []model.Event) string {
	if len(events) == 0 {
		return ""
	}
	return MaterializeAt(events, events[len(events)-1].Seq)
}

// MaterializeAt folds events with Seq <= seq into the text as of that point.
//
// SET_FULL_TEXT replaces the text wholesale. ROLLBACK replaces the text with
// the materialization as of its target, re-derived by folding the prefix that
// ends at the target rather than by reading the captured payload, so a
// rollback of a rollback is well-defined and simply re-derives the
// historical prefix.
func MaterializeAt(events []model.Event, seq int64) string {
	text := ""
	for i, e := range events {
		if e.Seq > seq {
			break
		}
		switch e.Kind {
		case model.KindSetFullText:
			text = e.Text
		case model.KindRollback:
			if e.TargetSeq != nil && *e.TargetSeq < e.Seq {
				text = MaterializeAt(events[:i], *e.TargetSeq)
			} else {
				// Malformed target (never produced by the rollback
				// coordinator): fall back to the captured snapshot.
				text = e.Text
			}
		}
	}
	return text
}

// LatestSeq returns the highest Seq in the sequence, or 0 when empty.
func LatestSeq(events []model.Event) int64 {
	if len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Seq
}

// FindSeq returns the event with the given Seq, or false when absent.
func FindSeq(events []model.Event, seq int64) (model.Event, bool) {
	for _, e := range events {
		if e.Seq == seq {
			return e, true
		}
	}
	return model.Event{}, false
}

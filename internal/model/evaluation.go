package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EvaluationStatus is the terminal state of an evaluation.
type EvaluationStatus string

const (
	EvaluationStatusCompleted EvaluationStatus = "completed"
	EvaluationStatusFailed    EvaluationStatus = "failed"
)

// CriterionResult is the judged outcome for a single criterion.
// Passed is set for boolean criteria, Score for score criteria.
type CriterionResult struct {
	Key    string        `json:"key"`
	Type   CriterionType `json:"type"`
	Passed *bool         `json:"passed,omitempty"`
	Score  *float64      `json:"score,omitempty"`
	Weight float64       `json:"weight"`
	Reason string        `json:"reason,omitempty"`
}

// Normalized maps the result onto [0,1]: 1.0/0.0 for boolean pass/fail,
// the clamped raw value for score criteria.
func (r CriterionResult) Normalized() float64 {
	switch r.Type {
	case CriterionBoolean:
		if r.Passed != nil && *r.Passed {
			return 1.0
		}
		return 0.0
	default:
		if r.Score == nil {
			return 0.0
		}
		return Clamp01(*r.Score)
	}
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Aggregate computes the weighted mean Σ(w·normalized)/Σw over per-criterion
// results. A zero total weight has no defined mean and fails validation
// instead of dividing by zero.
func Aggregate(results []CriterionResult) (float64, error) {
	var sum, weightSum float64
	for _, r := range results {
		sum += r.Weight * r.Normalized()
		weightSum += r.Weight
	}
	if weightSum <= 0 {
		return 0, fmt.Errorf("total criteria weight is zero: %w", ErrValidation)
	}
	return sum / weightSum, nil
}

// Evaluation is one immutable scoring pass over a run's output against the
// criteria snapshot bound at the run's creation. Re-scoring appends a new
// evaluation; prior ones are never discarded.
type Evaluation struct {
	ID              uuid.UUID         `json:"id"`
	RunID           uuid.UUID         `json:"run_id"`
	CriteriaVersion int               `json:"criteria_version"`
	PerCriterion    []CriterionResult `json:"per_criterion"`
	Aggregate       float64           `json:"aggregate"`
	Status          EvaluationStatus  `json:"status"`
	Error           string            `json:"error,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

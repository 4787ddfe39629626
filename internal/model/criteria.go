package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// CriterionType distinguishes pass/fail criteria from graded ones.
type CriterionType string

const (
	// CriterionBoolean is judged pass/fail; a pass normalizes to 1.0.
	CriterionBoolean CriterionType = "boolean"
	// CriterionScore is judged on [0,1]; out-of-range values are clamped.
	CriterionScore CriterionType = "score"
)

// Field length limits for criterion items.
const (
	MaxCriterionKeyLen  = 64
	MaxCriterionDescLen = 512
)

// CriterionItem is one scoring rule inside a snapshot.
type CriterionItem struct {
	Key    string        `json:"key"`
	Desc   string        `json:"desc"`
	Type   CriterionType `json:"type"`
	Weight float64       `json:"weight"`

	// Reference is an optional expected-output sample. When set, the rule
	// judge scores `score` criteria by token overlap against it.
	Reference string `json:"reference,omitempty"`
}

// CriteriaSnapshot is an immutable versioned set of scoring rules for a
// prompt. A save creates a new snapshot; prior versions are never touched,
// so runs created before the save keep resolving their original rubric.
type CriteriaSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	PromptID  uuid.UUID       `json:"prompt_id"`
	Version   int             `json:"version"`
	Items     []CriterionItem `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

// ValidateCriteriaItems enforces per-snapshot key uniqueness and positive
// finite weights. A failing set is rejected whole; no partial write happens.
func ValidateCriteriaItems(items []CriterionItem) error {
	if len(items) == 0 {
		return fmt.Errorf("criteria set must not be empty: %w", ErrValidation)
	}
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if it.Key == "" {
			return fmt.Errorf("items[%d]: key is required: %w", i, ErrValidation)
		}
		if len(it.Key) > MaxCriterionKeyLen {
			return fmt.Errorf("items[%d]: key exceeds maximum length of %d: %w", i, MaxCriterionKeyLen, ErrValidation)
		}
		if len(it.Desc) > MaxCriterionDescLen {
			return fmt.Errorf("items[%d]: desc exceeds maximum length of %d: %w", i, MaxCriterionDescLen, ErrValidation)
		}
		if seen[it.Key] {
			return fmt.Errorf("duplicate criterion key %q: %w", it.Key, ErrValidation)
		}
		seen[it.Key] = true
		switch it.Type {
		case CriterionBoolean, CriterionScore:
		default:
			return fmt.Errorf("items[%d]: type must be %q or %q: %w", i, CriterionBoolean, CriterionScore, ErrValidation)
		}
		if it.Weight <= 0 || math.IsInf(it.Weight, 0) || math.IsNaN(it.Weight) {
			return fmt.Errorf("items[%d]: weight must be a finite positive number: %w", i, ErrValidation)
		}
	}
	return nil
}

package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
)

// MemStore is an in-memory store used by service and handler tests. It
// mirrors the Postgres layer's error semantics: missing rows return
// model.ErrNotFound and duplicate keys return model.ErrConflict.
type MemStore struct {
	mu        sync.Mutex
	prompts   map[uuid.UUID]model.Prompt
	events    map[uuid.UUID][]model.Event
	snapshots map[uuid.UUID][]model.CriteriaSnapshot
	runs      map[uuid.UUID]model.Run
	evals     map[uuid.UUID][]model.Evaluation
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		prompts:   make(map[uuid.UUID]model.Prompt),
		events:    make(map[uuid.UUID][]model.Event),
		snapshots: make(map[uuid.UUID][]model.CriteriaSnapshot),
		runs:      make(map[uuid.UUID]model.Run),
		evals:     make(map[uuid.UUID][]model.Evaluation),
	}
}

func (m *MemStore) CreatePrompt(_ context.Context, p model.Prompt, first model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.prompts[p.ID]; ok {
		return fmt.Errorf("prompt %s: %w", p.ID, model.ErrConflict)
	}
	m.prompts[p.ID] = p
	m.events[p.ID] = []model.Event{first}
	return nil
}

func (m *MemStore) GetPrompt(_ context.Context, id uuid.UUID) (model.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prompts[id]
	if !ok {
		return model.Prompt{}, fmt.Errorf("prompt %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func (m *MemStore) ListPrompts(_ context.Context, limit int) ([]model.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]model.Prompt, 0, len(m.prompts))
	for _, p := range m.prompts {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemStore) AppendEvent(_ context.Context, e model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.events[e.PromptID] {
		if existing.Seq == e.Seq {
			return fmt.Errorf("event seq %d: %w", e.Seq, model.ErrConflict)
		}
	}
	m.events[e.PromptID] = append(m.events[e.PromptID], e)
	return nil
}

func (m *MemStore) ListEvents(_ context.Context, promptID uuid.UUID) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := append([]model.Event(nil), m.events[promptID]...)
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (m *MemStore) GetEvent(_ context.Context, promptID uuid.UUID, seq int64) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events[promptID] {
		if e.Seq == seq {
			return e, nil
		}
	}
	return model.Event{}, fmt.Errorf("event %d of prompt %s: %w", seq, promptID, model.ErrNotFound)
}

func (m *MemStore) LatestEvent(_ context.Context, promptID uuid.UUID) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.events[promptID]
	if len(events) == 0 {
		return model.Event{}, fmt.Errorf("prompt %s has no events: %w", promptID, model.ErrNotFound)
	}
	latest := events[0]
	for _, e := range events[1:] {
		if e.Seq > latest.Seq {
			latest = e
		}
	}
	return latest, nil
}

func (m *MemStore) InsertSnapshot(_ context.Context, s model.CriteriaSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.snapshots[s.PromptID] {
		if existing.Version == s.Version {
			return fmt.Errorf("criteria v%d: %w", s.Version, model.ErrConflict)
		}
	}
	m.snapshots[s.PromptID] = append(m.snapshots[s.PromptID], s)
	return nil
}

func (m *MemStore) CurrentSnapshot(_ context.Context, promptID uuid.UUID) (model.CriteriaSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := m.snapshots[promptID]
	if len(snaps) == 0 {
		return model.CriteriaSnapshot{}, fmt.Errorf("prompt %s has no criteria: %w", promptID, model.ErrNotFound)
	}
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if s.Version > latest.Version {
			latest = s
		}
	}
	return latest, nil
}

func (m *MemStore) GetSnapshot(_ context.Context, promptID uuid.UUID, version int) (model.CriteriaSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots[promptID] {
		if s.Version == version {
			return s, nil
		}
	}
	return model.CriteriaSnapshot{}, fmt.Errorf("criteria v%d of prompt %s: %w", version, promptID, model.ErrNotFound)
}

func (m *MemStore) ListSnapshotVersions(_ context.Context, promptID uuid.UUID) ([]model.CriteriaSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := append([]model.CriteriaSnapshot(nil), m.snapshots[promptID]...)
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Version < snaps[j].Version })
	return snaps, nil
}

func (m *MemStore) InsertRun(_ context.Context, r model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[r.ID]; ok {
		return fmt.Errorf("run %s: %w", r.ID, model.ErrConflict)
	}
	m.runs[r.ID] = r
	return nil
}

func (m *MemStore) GetRun(_ context.Context, id uuid.UUID) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return model.Run{}, fmt.Errorf("run %s: %w", id, model.ErrNotFound)
	}
	return r, nil
}

func (m *MemStore) ListRunsByPrompt(_ context.Context, promptID uuid.UUID, limit int) ([]model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []model.Run
	for _, r := range m.runs {
		if r.PromptID == promptID {
			list = append(list, r)
		}
	}
	// Newest first, run ID breaking created_at ties like the SQL ordering.
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID.String() > list[j].ID.String()
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemStore) InsertEvaluation(_ context.Context, e model.Evaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals[e.RunID] = append(m.evals[e.RunID], e)
	return nil
}

func (m *MemStore) ListEvaluationsByRun(_ context.Context, runID uuid.UUID) ([]model.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evals := append([]model.Evaluation(nil), m.evals[runID]...)
	sort.Slice(evals, func(i, j int) bool { return evals[i].CreatedAt.Before(evals[j].CreatedAt) })
	return evals, nil
}

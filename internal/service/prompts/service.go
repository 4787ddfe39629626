// Package prompts provides the shared business logic for prompt-document
// operations.
//
// Both the HTTP API and MCP server delegate to this service, eliminating
// duplicated logic and ensuring consistent behavior (event sequencing, hash
// chaining, projection, criteria versioning) across all interfaces.
package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/reprise-ai/reprise/internal/integrity"
	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/projection"
	"github.com/reprise-ai/reprise/internal/telemetry"
)

// Store is the storage surface the prompt service depends on.
type Store interface {
	CreatePrompt(ctx context.Context, p model.Prompt, first model.Event) error
	GetPrompt(ctx context.Context, id uuid.UUID) (model.Prompt, error)
	ListPrompts(ctx context.Context, limit int) ([]model.Prompt, error)
	AppendEvent(ctx context.Context, e model.Event) error
	ListEvents(ctx context.Context, promptID uuid.UUID) ([]model.Event, error)
	GetEvent(ctx context.Context, promptID uuid.UUID, seq int64) (model.Event, error)
	LatestEvent(ctx context.Context, promptID uuid.UUID) (model.Event, error)
	InsertSnapshot(ctx context.Context, s model.CriteriaSnapshot) error
	CurrentSnapshot(ctx context.Context, promptID uuid.UUID) (model.CriteriaSnapshot, error)
	GetSnapshot(ctx context.Context, promptID uuid.UUID, version int) (model.CriteriaSnapshot, error)
	ListSnapshotVersions(ctx context.Context, promptID uuid.UUID) ([]model.CriteriaSnapshot, error)
}

// Service encapsulates prompt business logic shared by HTTP and MCP handlers.
type Service struct {
	store  Store
	logger *slog.Logger

	eventsAppended metric.Int64Counter
	appendRetries  metric.Int64Counter
}

// maxAppendAttempts bounds retries when a concurrent writer claims the same
// sequence number. The caller sees model.ErrConflict once exhausted.
const maxAppendAttempts = 3

// New creates a new prompt Service.
func New(store Store, logger *slog.Logger) *Service {
	meter := telemetry.Meter("reprise/prompts")
	appended, _ := meter.Int64Counter("reprise.events.appended",
		metric.WithDescription("Prompt events successfully appended"),
	)
	retries, _ := meter.Int64Counter("reprise.events.append_retries",
		metric.WithDescription("Append attempts retried after a sequence conflict"),
	)
	return &Service{
		store:          store,
		logger:         logger,
		eventsAppended: appended,
		appendRetries:  retries,
	}
}

// Create registers a new prompt. Every prompt starts with a SET_FULL_TEXT
// event at seq 1 so the log is never empty and projection needs no
// zero-event special case.
func (s *Service) Create(ctx context.Context, name, initialText string) (model.Prompt, error) {
	if err := model.ValidatePromptName(name); err != nil {
		return model.Prompt{}, err
	}
	if len(initialText) > model.MaxTextLen {
		return model.Prompt{}, fmt.Errorf("initial text exceeds %d bytes: %w", model.MaxTextLen, model.ErrValidation)
	}

	now := time.Now().UTC()
	p := model.Prompt{ID: uuid.New(), Name: name, CreatedAt: now}
	first := model.Event{
		PromptID:  p.ID,
		Seq:       1,
		Kind:      model.KindSetFullText,
		Text:      initialText,
		Note:      "init",
		CreatedAt: now,
	}
	first.ContentHash = integrity.EventHash(first.PromptID, first.Seq, first.Kind, first.Text, first.TargetSeq, "")

	if err := s.store.CreatePrompt(ctx, p, first); err != nil {
		return model.Prompt{}, fmt.Errorf("create prompt: %w", err)
	}
	s.eventsAppended.Add(ctx, 1)
	return p, nil
}

// Get returns a prompt with its current projected text and latest sequence.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (model.Prompt, string, int64, error) {
	p, err := s.store.GetPrompt(ctx, id)
	if err != nil {
		return model.Prompt{}, "", 0, fmt.Errorf("get prompt: %w", err)
	}
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return model.Prompt{}, "", 0, fmt.Errorf("get prompt events: %w", err)
	}
	return p, projection.Materialize(events), projection.LatestSeq(events), nil
}

// List returns registered prompts.
func (s *Service) List(ctx context.Context, limit int) ([]model.Prompt, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListPrompts(ctx, limit)
}

// TextAt projects the prompt text as of the given event sequence.
// at <= 0 means the latest state.
func (s *Service) TextAt(ctx context.Context, id uuid.UUID, at int64) (string, int64, error) {
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return "", 0, fmt.Errorf("project text: %w", err)
	}
	if len(events) == 0 {
		return "", 0, fmt.Errorf("prompt %s: %w", id, model.ErrNotFound)
	}
	latest := projection.LatestSeq(events)
	if at <= 0 {
		return projection.Materialize(events), latest, nil
	}
	if at > latest {
		return "", 0, fmt.Errorf("event seq %d beyond head %d: %w", at, latest, model.ErrNotFound)
	}
	return projection.MaterializeAt(events, at), at, nil
}

// Events returns the full event log for a prompt, ascending by sequence.
func (s *Service) Events(ctx context.Context, id uuid.UUID) ([]model.Event, error) {
	if _, err := s.store.GetPrompt(ctx, id); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return s.store.ListEvents(ctx, id)
}

// Event returns a single event by prompt and sequence.
func (s *Service) Event(ctx context.Context, id uuid.UUID, seq int64) (model.Event, error) {
	return s.store.GetEvent(ctx, id, seq)
}

// AppendText appends a SET_FULL_TEXT event carrying a full replacement of the
// prompt text. Sequencing is optimistic: the next sequence is proposed from
// the current head and the unique (prompt_id, seq) index arbitrates races.
func (s *Service) AppendText(ctx context.Context, id uuid.UUID, text, note string) (model.Event, error) {
	if err := model.ValidateEventInput(model.KindSetFullText, text, note); err != nil {
		return model.Event{}, err
	}
	return s.append(ctx, model.Event{
		PromptID: id,
		Kind:     model.KindSetFullText,
		Text:     text,
		Note:     note,
	})
}

// Rollback appends a ROLLBACK event targeting a prior sequence. The log
// itself is never rewritten; projection re-derives the text as of targetSeq.
func (s *Service) Rollback(ctx context.Context, id uuid.UUID, targetSeq int64, note string) (model.Event, error) {
	target, err := s.store.GetEvent(ctx, id, targetSeq)
	if err != nil {
		return model.Event{}, fmt.Errorf("rollback target: %w", err)
	}
	if target.PromptID != id {
		return model.Event{}, fmt.Errorf("rollback target belongs to another prompt: %w", model.ErrValidation)
	}

	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return model.Event{}, fmt.Errorf("rollback: %w", err)
	}
	e := model.Event{
		PromptID:  id,
		Kind:      model.KindRollback,
		Text:      projection.MaterializeAt(events, targetSeq),
		TargetSeq: &targetSeq,
		Note:      note,
	}
	return s.append(ctx, e)
}

// append assigns the next sequence, links the hash chain, and inserts.
// On a sequence conflict it refreshes the head and retries a bounded
// number of times before surfacing model.ErrConflict.
func (s *Service) append(ctx context.Context, e model.Event) (model.Event, error) {
	if _, err := s.store.GetPrompt(ctx, e.PromptID); err != nil {
		return model.Event{}, fmt.Errorf("append: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		head, err := s.store.LatestEvent(ctx, e.PromptID)
		if err != nil {
			return model.Event{}, fmt.Errorf("append: read head: %w", err)
		}
		// The target must be strictly below the head, re-checked on every
		// retry since the head may have advanced since the last attempt.
		if e.Kind == model.KindRollback && *e.TargetSeq >= head.Seq {
			return model.Event{}, fmt.Errorf("rollback target %d is not a prior event: %w", *e.TargetSeq, model.ErrValidation)
		}

		e.Seq = head.Seq + 1
		e.PrevHash = head.ContentHash
		e.ContentHash = integrity.EventHash(e.PromptID, e.Seq, e.Kind, e.Text, e.TargetSeq, e.PrevHash)
		e.CreatedAt = time.Now().UTC()

		err = s.store.AppendEvent(ctx, e)
		if err == nil {
			s.eventsAppended.Add(ctx, 1)
			return e, nil
		}
		lastErr = err
		if !model.IsConflict(err) {
			return model.Event{}, fmt.Errorf("append: %w", err)
		}
		s.appendRetries.Add(ctx, 1)
		s.logger.Debug("append: sequence conflict, retrying",
			"prompt_id", e.PromptID, "seq", e.Seq, "attempt", attempt+1)
	}
	return model.Event{}, fmt.Errorf("append: retries exhausted: %w", lastErr)
}

// VerifyIntegrity re-derives the hash chain over a prompt's event log and
// reports the first broken sequence, if any.
func (s *Service) VerifyIntegrity(ctx context.Context, id uuid.UUID) (model.IntegrityResponse, error) {
	if _, err := s.store.GetPrompt(ctx, id); err != nil {
		return model.IntegrityResponse{}, fmt.Errorf("verify integrity: %w", err)
	}
	events, err := s.store.ListEvents(ctx, id)
	if err != nil {
		return model.IntegrityResponse{}, fmt.Errorf("verify integrity: %w", err)
	}
	broken, head := integrity.VerifyChain(events)
	return model.IntegrityResponse{
		PromptID:  id,
		Events:    len(events),
		ChainOK:   broken == nil,
		BrokenSeq: broken,
		HeadHash:  head,
	}, nil
}

// SaveCriteria validates and persists a new immutable criteria snapshot at
// version current+1. Validation is all-or-nothing: any bad item rejects the
// whole set and the stored version is untouched.
func (s *Service) SaveCriteria(ctx context.Context, id uuid.UUID, items []model.CriterionItem) (model.CriteriaSnapshot, error) {
	if _, err := s.store.GetPrompt(ctx, id); err != nil {
		return model.CriteriaSnapshot{}, fmt.Errorf("save criteria: %w", err)
	}
	if err := model.ValidateCriteriaItems(items); err != nil {
		return model.CriteriaSnapshot{}, err
	}

	version := 1
	current, err := s.store.CurrentSnapshot(ctx, id)
	switch {
	case err == nil:
		version = current.Version + 1
	case !model.IsNotFound(err):
		return model.CriteriaSnapshot{}, fmt.Errorf("save criteria: %w", err)
	}

	snap := model.CriteriaSnapshot{
		ID:        uuid.New(),
		PromptID:  id,
		Version:   version,
		Items:     items,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		return model.CriteriaSnapshot{}, fmt.Errorf("save criteria: %w", err)
	}
	return snap, nil
}

// Criteria returns the current criteria snapshot for a prompt.
func (s *Service) Criteria(ctx context.Context, id uuid.UUID) (model.CriteriaSnapshot, error) {
	return s.store.CurrentSnapshot(ctx, id)
}

// CriteriaVersion returns a specific historical criteria snapshot.
func (s *Service) CriteriaVersion(ctx context.Context, id uuid.UUID, version int) (model.CriteriaSnapshot, error) {
	return s.store.GetSnapshot(ctx, id, version)
}

// CriteriaVersions returns all criteria snapshots for a prompt, ascending.
func (s *Service) CriteriaVersions(ctx context.Context, id uuid.UUID) ([]model.CriteriaSnapshot, error) {
	if _, err := s.store.GetPrompt(ctx, id); err != nil {
		return nil, fmt.Errorf("list criteria versions: %w", err)
	}
	return s.store.ListSnapshotVersions(ctx, id)
}

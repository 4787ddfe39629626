package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
)

// pathUUID parses a UUID path segment.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, model.ErrValidation)
	}
	return id, nil
}

// HandleCreatePrompt handles POST /v1/prompts.
func (h *Handlers) HandleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req model.CreatePromptRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	p, err := h.promptSvc.Create(r.Context(), req.Name, req.Text)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.PromptResponse{Prompt: p, Text: req.Text, LatestSeq: 1})
}

// HandleListPrompts handles GET /v1/prompts.
func (h *Handlers) HandleListPrompts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.promptSvc.List(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleGetPrompt handles GET /v1/prompts/{prompt_id}.
func (h *Handlers) HandleGetPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	p, text, seq, err := h.promptSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.PromptResponse{Prompt: p, Text: text, LatestSeq: seq})
}

// HandleGetText handles GET /v1/prompts/{prompt_id}/text.
// The optional ?at=N query projects the text as of event sequence N.
func (h *Handlers) HandleGetText(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var at int64
	if v := r.URL.Query().Get("at"); v != "" {
		at, err = strconv.ParseInt(v, 10, 64)
		if err != nil || at < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "at must be a positive integer")
			return
		}
	}
	text, seq, err := h.promptSvc.TextAt(r.Context(), id, at)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"prompt_id": id,
		"text":      text,
		"as_of_seq": seq,
	})
}

// HandleListEvents handles GET /v1/prompts/{prompt_id}/events.
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	events, err := h.promptSvc.Events(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, events)
}

// HandleGetEvent handles GET /v1/prompts/{prompt_id}/events/{seq}.
func (h *Handlers) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	seq, err := strconv.ParseInt(r.PathValue("seq"), 10, 64)
	if err != nil || seq < 1 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "seq must be a positive integer")
		return
	}
	e, err := h.promptSvc.Event(r.Context(), id, seq)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// HandleAppendEvent handles POST /v1/prompts/{prompt_id}/events.
func (h *Handlers) HandleAppendEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req model.AppendEventRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.Kind != "" && req.Kind != model.KindSetFullText {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			fmt.Sprintf("kind %q cannot be appended directly", req.Kind))
		return
	}

	e, err := h.promptSvc.AppendText(r.Context(), id, req.Text, req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// HandleRollback handles POST /v1/prompts/{prompt_id}/rollback.
func (h *Handlers) HandleRollback(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req model.RollbackRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}
	if req.TargetEventSeq < 1 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "target_event_seq must be a positive integer")
		return
	}

	e, err := h.promptSvc.Rollback(r.Context(), id, req.TargetEventSeq, req.Note)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// HandleIntegrity handles GET /v1/prompts/{prompt_id}/integrity.
func (h *Handlers) HandleIntegrity(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp, err := h.promptSvc.VerifyIntegrity(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

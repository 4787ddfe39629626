package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/reprise-ai/reprise/internal/model"
	"github.com/reprise-ai/reprise/internal/service/runs"
)

// HandleCreateRun handles POST /v1/runs.
// Generation runs synchronously; the response carries the finished run.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	run, err := h.runSvc.Execute(r.Context(), runs.Input{
		PromptID:  req.PromptID,
		InputText: req.InputText,
		Model:     req.Model,
		Params:    req.Params,
	})
	if err != nil {
		// A failed generation still persisted a run; surface it in the error body.
		if run.ID != uuid.Nil {
			h.logger.Warn("run recorded with failure", "run_id", run.ID, "status", run.Status)
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, run)
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "run_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	run, err := h.runSvc.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleListRuns handles GET /v1/prompts/{prompt_id}/runs.
func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.runSvc.ListByPrompt(r.Context(), id, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleEvaluateRun handles POST /v1/runs/{run_id}/evaluations.
func (h *Handlers) HandleEvaluateRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "run_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	e, err := h.evalSvc.Evaluate(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// HandleListEvaluations handles GET /v1/runs/{run_id}/evaluations.
func (h *Handlers) HandleListEvaluations(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "run_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	list, err := h.evalSvc.ListByRun(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleReviewRun handles POST /v1/runs/{run_id}/review.
func (h *Handlers) HandleReviewRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "run_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp, err := h.evalSvc.Review(r.Context(), h.gen, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

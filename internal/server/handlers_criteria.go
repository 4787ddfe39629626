package server

import (
	"net/http"
	"strconv"

	"github.com/reprise-ai/reprise/internal/model"
)

// HandleSaveCriteria handles PUT /v1/prompts/{prompt_id}/criteria.
// Each save creates a new immutable snapshot version.
func (h *Handlers) HandleSaveCriteria(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req model.SaveCriteriaRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.promptSvc.SaveCriteria(r.Context(), id, req.Items)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, snap)
}

// HandleGetCriteria handles GET /v1/prompts/{prompt_id}/criteria.
func (h *Handlers) HandleGetCriteria(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	snap, err := h.promptSvc.Criteria(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

// HandleListCriteriaVersions handles GET /v1/prompts/{prompt_id}/criteria/versions.
func (h *Handlers) HandleListCriteriaVersions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	snaps, err := h.promptSvc.CriteriaVersions(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snaps)
}

// HandleGetCriteriaVersion handles GET /v1/prompts/{prompt_id}/criteria/versions/{version}.
func (h *Handlers) HandleGetCriteriaVersion(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "prompt_id")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "version must be a positive integer")
		return
	}
	snap, err := h.promptSvc.CriteriaVersion(r.Context(), id, version)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}

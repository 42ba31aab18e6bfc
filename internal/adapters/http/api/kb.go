// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/loomery/matchd/internal/domain/kb"
)

// skillRequest mirrors the schema for POST /kb/skills.
type skillRequest struct {
	DisplayName string `json:"display_name"`
	ParentID    string `json:"parent_id,omitempty"`
}

type skillResponse struct {
	SkillID string `json:"skill_id"`
}

// synonymRequest mirrors the schema for POST /kb/synonyms.
type synonymRequest struct {
	Term    string `json:"term"`
	SkillID string `json:"skill_id"`
}

type reembedResponse struct {
	ModelVersion int `json:"model_version"`
}

// KBHandler handles knowledge-base curation requests.
type KBHandler struct {
	deps Dependencies
}

// NewKBHandler creates a new KB handler.
func NewKBHandler(deps Dependencies) *KBHandler {
	return &KBHandler{deps: deps}
}

// HandleAddSkill handles POST /kb/skills requests.
func (h *KBHandler) HandleAddSkill(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_skill"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req skillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapOp(op, err))
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			wrapOp(op, errors.New("missing display_name")))
		return
	}

	id, err := h.deps.AddSkill(r.Context(), req.DisplayName, req.ParentID)
	if err != nil {
		switch {
		case errors.Is(err, kb.ErrUnknownSkill):
			writeError(w, http.StatusNotFound, "unknown_parent", err)
		case errors.Is(err, kb.ErrCycle), errors.Is(err, kb.ErrEmptyTerm):
			writeError(w, http.StatusBadRequest, "bad_request", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", wrapOp(op, err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, skillResponse{SkillID: id})
}

// HandleAddSynonym handles POST /kb/synonyms requests. Re-adding an
// identical mapping is idempotent; remapping a term to a different skill
// is a conflict.
func (h *KBHandler) HandleAddSynonym(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_synonym"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req synonymRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapOp(op, err))
		return
	}
	if strings.TrimSpace(req.Term) == "" || strings.TrimSpace(req.SkillID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request",
			wrapOp(op, errors.New("missing term or skill_id")))
		return
	}

	if err := h.deps.AddSynonym(r.Context(), req.Term, req.SkillID); err != nil {
		switch {
		case errors.Is(err, kb.ErrSynonymConflict):
			writeError(w, http.StatusConflict, "synonym_conflict", err)
		case errors.Is(err, kb.ErrUnknownSkill):
			writeError(w, http.StatusNotFound, "unknown_skill", err)
		case errors.Is(err, kb.ErrEmptyTerm):
			writeError(w, http.StatusBadRequest, "bad_request", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", wrapOp(op, err))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReembed handles POST /kb/reembed requests: bump the embedding
// model version and schedule re-embedding for all entities.
func (h *KBHandler) HandleReembed(w http.ResponseWriter, r *http.Request) {
	const op = "api.reembed"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	version, err := h.deps.BumpModelVersion(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", wrapOp(op, err))
		return
	}
	writeJSON(w, http.StatusAccepted, reembedResponse{ModelVersion: version})
}

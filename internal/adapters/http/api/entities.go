// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/loomery/matchd/internal/adapters/storage"
	service "github.com/loomery/matchd/internal/app"
	"github.com/loomery/matchd/internal/domain/model"
)

// userRequest mirrors the schema for PUT /users/{id}. Skills and
// interests are raw text; the service canonicalizes them against the KB.
type userRequest struct {
	Skills    map[string]float64   `json:"skills"`
	Interests []string             `json:"interests,omitempty"`
	History   []interactionRequest `json:"history,omitempty"`
	Version   int64                `json:"version,omitempty"`
}

type interactionRequest struct {
	OpportunityID string `json:"opportunity_id"`
	Action        string `json:"action"`
	At            string `json:"at"`
}

// opportunityRequest mirrors the schema for PUT /opportunities/{id}.
type opportunityRequest struct {
	Required    map[string]float64 `json:"required"`
	Description string             `json:"description,omitempty"`
	Category    string             `json:"category,omitempty"`
	PostedAt    string             `json:"posted_at,omitempty"`
	ExpiresAt   string             `json:"expires_at,omitempty"`
	Version     int64              `json:"version,omitempty"`
}

type upsertResponse struct {
	ID         string   `json:"id"`
	Version    int64    `json:"version"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// EntityHandler handles user and opportunity writes.
type EntityHandler struct {
	deps Dependencies
}

// NewEntityHandler creates a new entity handler.
func NewEntityHandler(deps Dependencies) *EntityHandler {
	return &EntityHandler{deps: deps}
}

// HandlePutUser handles PUT /users/{id} requests.
func (h *EntityHandler) HandlePutUser(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_user"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/users/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapOp(op, err))
		return
	}

	history := make([]model.Interaction, 0, len(req.History))
	for _, it := range req.History {
		at, err := time.Parse(time.RFC3339, it.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request",
				wrapOp(op, errors.New("invalid interaction timestamp; must be RFC3339")))
			return
		}
		action := model.Action(it.Action)
		switch action {
		case model.ActionApplied, model.ActionSaved, model.ActionViewed:
		default:
			writeError(w, http.StatusBadRequest, "bad_request",
				wrapOp(op, errors.New("unknown interaction action")))
			return
		}
		history = append(history, model.Interaction{
			OpportunityID: it.OpportunityID,
			Action:        action,
			At:            at,
		})
	}

	profile, unresolved, err := h.deps.PutUser(r.Context(), service.UserUpsert{
		UserID:          id,
		RawSkills:       req.Skills,
		Interests:       req.Interests,
		History:         history,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		writeUpsertError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{
		ID:         profile.UserID,
		Version:    profile.Version,
		Unresolved: unresolved,
	})
}

// HandlePutOpportunity handles PUT /opportunities/{id} requests.
func (h *EntityHandler) HandlePutOpportunity(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_opportunity"
	if r.Method != http.MethodPut {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/opportunities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	var req opportunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapOp(op, err))
		return
	}

	postedAt, err := parseTime(req.PostedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request",
			wrapOp(op, errors.New("invalid posted_at; must be RFC3339")))
		return
	}
	expiresAt, err := parseTime(req.ExpiresAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request",
			wrapOp(op, errors.New("invalid expires_at; must be RFC3339")))
		return
	}

	opp, unresolved, err := h.deps.PutOpportunity(r.Context(), service.OpportunityUpsert{
		OpportunityID:   id,
		RawRequired:     req.Required,
		Description:     req.Description,
		Category:        req.Category,
		PostedAt:        postedAt,
		ExpiresAt:       expiresAt,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		writeUpsertError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, upsertResponse{
		ID:         opp.OpportunityID,
		Version:    opp.Version,
		Unresolved: unresolved,
	})
}

func writeUpsertError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrVersionMismatch):
		writeError(w, http.StatusConflict, "version_conflict", err)
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", wrapOp(op, err))
	}
}

// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/loomery/matchd/internal/adapters/index"
	service "github.com/loomery/matchd/internal/app"
)

// matchRequest mirrors the schema for POST /match.
type matchRequest struct {
	UserID   string             `json:"user_id"`
	Limit    int                `json:"limit,omitempty"`
	Weights  map[string]float64 `json:"weights,omitempty"`
	MinScore *float64           `json:"min_score,omitempty"`
	Category string             `json:"category,omitempty"`
}

func (m matchRequest) validate() error {
	switch {
	case strings.TrimSpace(m.UserID) == "":
		return errors.New("missing user_id")
	case m.Limit < 0:
		return errors.New("limit must not be negative")
	case m.MinScore != nil && (*m.MinScore < 0 || *m.MinScore > 1):
		return errors.New("min_score must be in [0,1]")
	}
	return nil
}

// matchEntry is one ranked opportunity in the response. Scores are
// rounded to three decimals for display.
type matchEntry struct {
	OpportunityID string             `json:"opportunity_id"`
	Score         float64            `json:"score"`
	Breakdown     map[string]float64 `json:"breakdown"`
}

type matchResponse struct {
	UserID  string       `json:"user_id"`
	Results []matchEntry `json:"results"`
}

// MatchHandler handles match requests.
type MatchHandler struct {
	deps Dependencies
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(deps Dependencies) *MatchHandler {
	return &MatchHandler{deps: deps}
}

// HandleMatch handles POST /match requests.
func (h *MatchHandler) HandleMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.match"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapOp(op, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapOp(op, err))
		return
	}

	result, err := h.deps.Match(r.Context(), service.MatchRequest{
		UserID:   req.UserID,
		Limit:    req.Limit,
		Weights:  req.Weights,
		MinScore: req.MinScore,
		Category: req.Category,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnresolvedEntity):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, service.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, "bad_request", err)
		case errors.Is(err, index.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "index_unavailable", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", wrapOp(op, err))
		}
		return
	}

	resp := matchResponse{
		UserID:  result.UserID,
		Results: make([]matchEntry, len(result.Entries)),
	}
	for i, e := range result.Entries {
		breakdown := make(map[string]float64, len(e.Breakdown))
		for name, v := range e.Breakdown {
			breakdown[name] = round3(v)
		}
		resp.Results[i] = matchEntry{
			OpportunityID: e.OpportunityID,
			Score:         round3(e.Score),
			Breakdown:     breakdown,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

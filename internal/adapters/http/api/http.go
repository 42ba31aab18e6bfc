// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	service "github.com/loomery/matchd/internal/app"
	"github.com/loomery/matchd/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Match runs the ranking pipeline for one user.
	Match(ctx context.Context, req service.MatchRequest) (model.RankedResult, error)

	// Entity writes.
	PutUser(ctx context.Context, up service.UserUpsert) (model.UserProfile, []string, error)
	PutOpportunity(ctx context.Context, up service.OpportunityUpsert) (model.Opportunity, []string, error)

	// Knowledge-base curation.
	AddSkill(ctx context.Context, display, parentID string) (string, error)
	AddSynonym(ctx context.Context, term, canonicalID string) error
	BumpModelVersion(ctx context.Context) (int, error)

	// Stats exposes service statistics for monitoring.
	Stats(ctx context.Context) map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	matchHandler  *MatchHandler
	entityHandler *EntityHandler
	kbHandler     *KBHandler
	statsHandler  *StatsHandler
	healthHandler *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		matchHandler:  NewMatchHandler(deps),
		entityHandler: NewEntityHandler(deps),
		kbHandler:     NewKBHandler(deps),
		statsHandler:  NewStatsHandler(deps),
		healthHandler: NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/match", MetricsMiddleware(s.matchHandler.HandleMatch, "match"))
	mux.HandleFunc("/users/", MetricsMiddleware(s.entityHandler.HandlePutUser, "users"))
	mux.HandleFunc("/opportunities/", MetricsMiddleware(s.entityHandler.HandlePutOpportunity, "opportunities"))
	mux.HandleFunc("/kb/skills", MetricsMiddleware(s.kbHandler.HandleAddSkill, "kb_skills"))
	mux.HandleFunc("/kb/synonyms", MetricsMiddleware(s.kbHandler.HandleAddSynonym, "kb_synonyms"))
	mux.HandleFunc("/kb/reembed", MetricsMiddleware(s.kbHandler.HandleReembed, "kb_reembed"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// round3 rounds a score for display. Internal aggregation stays at full
// float64 precision; only the API boundary rounds.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

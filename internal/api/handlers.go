// Package api implements the Admission & Status API (spec.md §6): the
// HTTP surface through which profiles are submitted and operators read
// queue, cooldown, and connection-health state. Grounded on the teacher's
// internal/app/server package — same writeJSON/writeError helpers, same
// http.NewServeMux method-prefixed routing.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"steamgate/internal/domain"
	"steamgate/internal/healthjudge"
	"steamgate/internal/queue"
)

// longCooldownThresholdMs is the remaining-duration floor above which a
// cooldown counts as "long" for the overall_status rollup (spec.md §6).
const longCooldownThresholdMs = 30 * 60 * 1000

// Queue is the subset of *queue.Store the API depends on.
type Queue interface {
	Add(steamID, username string, enqueuedAtMs int64) (queue.AddResult, error)
	All() ([]domain.Profile, error)
	Stats() (queue.Stats, error)
}

// Cooldowns is the subset of *cooldown.Store the API depends on.
type Cooldowns interface {
	Snapshot() map[int]map[domain.EndpointClass]domain.CooldownRecord
}

// Registry is the subset of *registry.Registry the API depends on.
type Registry interface {
	All() []domain.Connection
}

// HealthJudge is the subset of *healthjudge.Judge the API depends on.
type HealthJudge interface {
	Snapshot() []healthjudge.Result
}

// Server holds the dependencies every handler needs and exposes the
// wired *http.ServeMux via Routes.
type Server struct {
	queue       Queue
	cooldowns   Cooldowns
	registry    Registry
	healthJudge HealthJudge
	nowFunc     func() int64
}

// New constructs a Server over its dependencies.
func New(q Queue, c Cooldowns, reg Registry, judge HealthJudge) *Server {
	return &Server{
		queue:       q,
		cooldowns:   c,
		registry:    reg,
		healthJudge: judge,
		nowFunc:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Routes builds the method-prefixed mux serving the Admission & Status
// API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/cooldowns", s.handleCooldowns)
	mux.HandleFunc("GET /health/connections", s.handleConnections)
	mux.HandleFunc("POST /profiles", s.handleSubmitProfiles)
	mux.HandleFunc("GET /profiles/queue", s.handleQueue)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("api: encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

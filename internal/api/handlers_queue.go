package api

import (
	"net/http"

	"steamgate/internal/api/dto"
	"steamgate/internal/domain"
)

// handleQueue reports every queued profile plus aggregate stats
// (spec.md §6 GET /profiles/queue).
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.queue.All()
	if err != nil {
		writeError(w, "failed to read queue", http.StatusInternalServerError)
		return
	}

	stats, err := s.queue.Stats()
	if err != nil {
		writeError(w, "failed to compute queue stats", http.StatusInternalServerError)
		return
	}

	views := make([]dto.ProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, toProfileView(p))
	}

	writeJSON(w, http.StatusOK, dto.ProfilesQueueResponse{
		Profiles: views,
		Stats:    stats,
	})
}

func toProfileView(p domain.Profile) dto.ProfileView {
	checks := make(map[string]string, len(p.Checks))
	for name, status := range p.Checks {
		checks[string(name)] = string(status)
	}
	return dto.ProfileView{
		SteamID:    p.SteamID,
		Username:   p.Username,
		EnqueuedAt: p.EnqueuedAt,
		Checks:     checks,
		Private:    p.Private,
	}
}

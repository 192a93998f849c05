package api

import (
	"net/http"

	"steamgate/internal/api/dto"
	"steamgate/internal/domain"
)

// handleCooldowns reports the full cooldown matrix plus a rollup status
// (spec.md §6). overall_status is "degraded" once any (connection,
// endpoint) cell has a cooldown with at least longCooldownThresholdMs
// remaining, "limited" if every active cooldown is shorter than that, and
// "healthy" when no cell is in cooldown.
func (s *Server) handleCooldowns(w http.ResponseWriter, r *http.Request) {
	connections := s.registry.All()
	snapshot := s.cooldowns.Snapshot()
	now := s.nowFunc()

	cooldowns := make(map[string]dto.ConnectionCooldownView, len(connections))
	endpointsInCooldownSet := make(map[domain.EndpointClass]bool)
	shortCooldowns := 0
	longCooldowns := 0
	availableConnections := 0

	for _, conn := range connections {
		byEndpoint := snapshot[conn.Index]
		endpoints := make(map[string]dto.EndpointCooldownView, len(domain.AllEndpointClasses()))
		connAvailable := true

		for _, ep := range domain.AllEndpointClasses() {
			rec, ok := byEndpoint[ep]
			if !ok || rec.Expired(now) {
				endpoints[string(ep)] = dto.EndpointCooldownView{InCooldown: false}
				continue
			}

			connAvailable = false
			endpointsInCooldownSet[ep] = true
			remaining := rec.RemainingMs(now)
			if remaining >= longCooldownThresholdMs {
				longCooldowns++
			} else {
				shortCooldowns++
			}

			endpoints[string(ep)] = dto.EndpointCooldownView{
				InCooldown:   true,
				RemainingMs:  remaining,
				RemainingMin: float64(remaining) / 60000,
				Reason:       string(rec.Reason),
				BackoffLevel: rec.BackoffLevel,
				Until:        rec.UntilMs,
			}
		}

		if connAvailable {
			availableConnections++
		}

		cooldowns[conn.Key()] = dto.ConnectionCooldownView{
			Type:      string(conn.Kind),
			URL:       conn.URL,
			Endpoints: endpoints,
		}
	}

	endpointsInCooldown := make([]string, 0, len(endpointsInCooldownSet))
	for ep := range endpointsInCooldownSet {
		endpointsInCooldown = append(endpointsInCooldown, string(ep))
	}

	overallStatus := "healthy"
	if longCooldowns > 0 {
		overallStatus = "degraded"
	} else if len(endpointsInCooldown) > 0 {
		overallStatus = "limited"
	}

	writeJSON(w, http.StatusOK, dto.CooldownsResponse{
		Cooldowns: cooldowns,
		Summary: dto.CooldownsSummary{
			TotalConnections:     len(connections),
			AvailableConnections: availableConnections,
			EndpointsInCooldown:  endpointsInCooldown,
			ShortCooldowns:       shortCooldowns,
			LongCooldowns:        longCooldowns,
		},
		OverallStatus: overallStatus,
	})
}

// handleConnections reports the Connection Health Judge's latest liveness
// snapshot (spec.md §6 GET /health/connections).
func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	results := s.healthJudge.Snapshot()
	views := make([]dto.ConnectionHealthView, 0, len(results))
	for _, res := range results {
		views = append(views, dto.ConnectionHealthView{
			Index:     res.Index,
			Type:      string(res.Kind),
			Healthy:   res.Healthy,
			CheckedAt: res.CheckedAt,
			Error:     res.Error,
		})
	}
	writeJSON(w, http.StatusOK, dto.ConnectionsHealthResponse{Connections: views})
}

package scheduler

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"steamgate/internal/domain"
)

// reactivationLoop retries deferred checks on a fixed interval, cooperating
// with the main loop rather than blocking it (spec.md §4.6).
func (s *Scheduler) reactivationLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reactivationPeriod):
		}
		s.reactivate(ctx)
	}
}

// reactivate cleans up expired cooldowns, then retries every deferred
// (steam_id, check) pair whose endpoint class has at least one available
// connection (spec.md §4.6 reactivation loop steps 1-3).
func (s *Scheduler) reactivate(ctx context.Context) {
	if removed, err := s.cooldowns.CleanupExpired(); err != nil {
		log.Error("scheduler: cleanup_expired failed", "error", err)
	} else if removed > 0 {
		log.Debug("scheduler: cleanup_expired removed cooldowns", "count", removed)
	}

	pending := s.deferred.Snapshot()
	retried := 0
	for _, entry := range pending {
		select {
		case <-ctx.Done():
			return
		default:
		}

		endpoint := domain.CheckEndpoints[entry.Check]
		if !s.anyConnectionAvailable(endpoint) {
			continue
		}

		profile, ok, err := s.queue.ByID(entry.SteamID)
		if err != nil {
			log.Error("scheduler: by_id failed during reactivation", "steam_id", entry.SteamID, "error", err)
			continue
		}
		if !ok {
			// Profile left the queue (removed or terminally resolved)
			// while deferred; drop the stale entry.
			s.deferred.Remove(entry.SteamID, entry.Check)
			continue
		}
		if profile.Checks[entry.Check] != domain.StatusDeferred {
			s.deferred.Remove(entry.SteamID, entry.Check)
			continue
		}

		status, _ := s.runOneCheck(entry.SteamID, entry.Check)
		retried++
		if status == domain.StatusFailed {
			if err := s.queue.Remove(entry.SteamID); err != nil {
				log.Error("scheduler: remove failed profile during reactivation failed", "steam_id", entry.SteamID, "error", err)
			}
		}
	}

	log.Debug("scheduler: reactivation pass complete", "deferred_total", s.deferred.Len(), "retried", retried)
}

func (s *Scheduler) anyConnectionAvailable(endpoint domain.EndpointClass) bool {
	for _, conn := range s.registry.All() {
		if s.cooldowns.IsAvailable(conn.Index, endpoint) {
			return true
		}
	}
	return false
}

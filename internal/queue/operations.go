package queue

import (
	"steamgate/internal/domain"
)

// AddResult tags whether Add inserted a new profile or found one already
// queued under the same steam_id.
type AddResult string

const (
	Added          AddResult = "added"
	AlreadyPresent AddResult = "already_present"
)

// Add inserts a new Profile for steamID/username if none exists yet,
// idempotent on steam_id (spec.md §4.5, §8 round-trip property).
func (s *Store) Add(steamID, username string, enqueuedAtMs int64) (AddResult, error) {
	result := AlreadyPresent
	err := s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		for _, p := range profiles {
			if p.SteamID == steamID {
				return profiles, false, nil
			}
		}
		result = Added
		profiles = append(profiles, domain.NewProfile(steamID, username, enqueuedAtMs))
		return profiles, true, nil
	})
	return result, err
}

// UpdateCheck sets the named check's status for steamID. An unknown
// profile is a no-op returning false, not an error (spec.md §4.5).
func (s *Store) UpdateCheck(steamID string, check domain.CheckName, status domain.CheckStatus) (bool, error) {
	found := false
	err := s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		for i := range profiles {
			if profiles[i].SteamID != steamID {
				continue
			}
			found = true
			profiles[i].Checks[check] = status
			return profiles, true, nil
		}
		return profiles, false, nil
	})
	return found, err
}

// SetPrivate flags steamID's profile as private, short-circuiting its
// remaining friends/csgo_inventory checks at the scheduler (spec.md §4.4).
func (s *Store) SetPrivate(steamID string, private bool) error {
	return s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		for i := range profiles {
			if profiles[i].SteamID == steamID {
				profiles[i].Private = private
				return profiles, true, nil
			}
		}
		return profiles, false, nil
	})
}

// Remove deletes steamID's profile, if present.
func (s *Store) Remove(steamID string) error {
	return s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		out := make([]domain.Profile, 0, len(profiles))
		changed := false
		for _, p := range profiles {
			if p.SteamID == steamID {
				changed = true
				continue
			}
			out = append(out, p)
		}
		return out, changed, nil
	})
}

// ByID returns the profile for steamID, if present.
func (s *Store) ByID(steamID string) (domain.Profile, bool, error) {
	var found domain.Profile
	var ok bool
	err := s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		for _, p := range profiles {
			if p.SteamID == steamID {
				found, ok = p, true
				break
			}
		}
		return profiles, false, nil
	})
	return found, ok, err
}

// All returns every queued profile, for the /profiles/queue endpoint.
func (s *Store) All() ([]domain.Profile, error) {
	var out []domain.Profile
	err := s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		out = append([]domain.Profile(nil), profiles...)
		return profiles, false, nil
	})
	return out, err
}

// Stats summarises the queue for observability endpoints.
type Stats struct {
	Total    int `json:"total"`
	ToCheck  int `json:"to_check"`
	Deferred int `json:"deferred"`
	Terminal int `json:"terminal"`
	Private  int `json:"private"`
}

// Stats computes aggregate queue counts (spec.md §4.5).
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	err := s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		stats.Total = len(profiles)
		for _, p := range profiles {
			switch {
			case p.AnyToCheck():
				stats.ToCheck++
			case p.AllTerminal():
				stats.Terminal++
			case p.AnyDeferred():
				stats.Deferred++
			}
			if p.Private {
				stats.Private++
			}
		}
		return profiles, false, nil
	})
	return stats, err
}

// NextProcessable implements spec.md §4.6 step 2: the first profile with
// any to_check check; failing that, the first with all checks terminal
// (awaiting downstream submission); failing that, the first with any
// deferred check; else none.
func (s *Store) NextProcessable() (domain.Profile, bool, error) {
	var result domain.Profile
	var ok bool

	err := s.withLock(func(profiles []domain.Profile) ([]domain.Profile, bool, error) {
		for _, p := range profiles {
			if p.AnyToCheck() {
				result, ok = p, true
				return profiles, false, nil
			}
		}
		for _, p := range profiles {
			if p.AllTerminal() {
				result, ok = p, true
				return profiles, false, nil
			}
		}
		for _, p := range profiles {
			if p.AnyDeferred() {
				result, ok = p, true
				return profiles, false, nil
			}
		}
		return profiles, false, nil
	})
	return result, ok, err
}

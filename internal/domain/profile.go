package domain

// CheckName is the closed set of checks every queued profile carries.
type CheckName string

const (
	CheckAnimatedAvatar        CheckName = "animated_avatar"
	CheckAvatarFrame           CheckName = "avatar_frame"
	CheckMiniProfileBackground CheckName = "mini_profile_background"
	CheckProfileBackground     CheckName = "profile_background"
	CheckSteamLevel            CheckName = "steam_level"
	CheckFriends               CheckName = "friends"
	CheckCSGOInventory         CheckName = "csgo_inventory"
)

// CheckOrder is the fixed declaration order checks are attempted in for a
// single profile (spec.md §4.6, §5).
var CheckOrder = []CheckName{
	CheckAnimatedAvatar,
	CheckAvatarFrame,
	CheckMiniProfileBackground,
	CheckProfileBackground,
	CheckSteamLevel,
	CheckFriends,
	CheckCSGOInventory,
}

// CheckStatus is a check's current state in the per-profile state machine.
type CheckStatus string

const (
	StatusToCheck  CheckStatus = "to_check"
	StatusPassed   CheckStatus = "passed"
	StatusFailed   CheckStatus = "failed"
	StatusDeferred CheckStatus = "deferred"
)

// Profile is one queued gaming-platform account awaiting validation.
type Profile struct {
	SteamID    string                    `json:"steam_id"`
	Username   string                    `json:"username"`
	EnqueuedAt int64                     `json:"enqueued_at"`
	Checks     map[CheckName]CheckStatus `json:"checks"`
	Private    bool                      `json:"private,omitempty"`
}

// NewProfile builds a Profile with all seven checks in the to_check state,
// as required by spec.md §3.
func NewProfile(steamID, username string, enqueuedAtMs int64) Profile {
	checks := make(map[CheckName]CheckStatus, len(CheckOrder))
	for _, name := range CheckOrder {
		checks[name] = StatusToCheck
	}
	return Profile{
		SteamID:    steamID,
		Username:   username,
		EnqueuedAt: enqueuedAtMs,
		Checks:     checks,
	}
}

// HasCompleteCheckSet reports whether the profile carries exactly the seven
// fixed check names (spec.md §8 invariant).
func (p Profile) HasCompleteCheckSet() bool {
	if len(p.Checks) != len(CheckOrder) {
		return false
	}
	for _, name := range CheckOrder {
		if _, ok := p.Checks[name]; !ok {
			return false
		}
	}
	return true
}

// AnyToCheck reports whether at least one check is still pending dispatch.
func (p Profile) AnyToCheck() bool {
	for _, status := range p.Checks {
		if status == StatusToCheck {
			return true
		}
	}
	return false
}

// AnyFailed reports whether any check has terminally failed.
func (p Profile) AnyFailed() bool {
	for _, status := range p.Checks {
		if status == StatusFailed {
			return true
		}
	}
	return false
}

// AnyDeferred reports whether any check is currently deferred.
func (p Profile) AnyDeferred() bool {
	for _, status := range p.Checks {
		if status == StatusDeferred {
			return true
		}
	}
	return false
}

// AllPassed reports whether every check has passed — the acceptance
// condition for forwarding to the downstream ingest API.
func (p Profile) AllPassed() bool {
	for _, status := range p.Checks {
		if status != StatusPassed {
			return false
		}
	}
	return true
}

// AllTerminal reports whether every check is in a terminal state (passed or
// failed) — used by next_processable to find submission candidates.
func (p Profile) AllTerminal() bool {
	for _, status := range p.Checks {
		if status != StatusPassed && status != StatusFailed {
			return false
		}
	}
	return true
}

// Package validator interprets Dispatcher outcomes into per-check verdicts
// (spec.md §4.4). It is a pure function of the Dispatcher's response body
// and status signals: it never performs I/O or holds state, mirroring the
// teacher's stateless judge functions in
// internal/jobs/checker/judges/judge_routine.go.
package validator

import (
	"encoding/json"
	"fmt"

	"steamgate/internal/domain"
)

// Validator interprets a domain.Outcome for a specific check name into a
// domain.Verdict.
type Validator struct{}

// New constructs a Validator. It carries no state.
func New() *Validator {
	return &Validator{}
}

// checkFuncs maps every fixed check name to its interpreter. Declared once
// so Run and any introspection over the supported check set share a single
// source of truth.
var checkFuncs = map[domain.CheckName]func(domain.EndpointClass, domain.Outcome) domain.Verdict{
	domain.CheckAnimatedAvatar:        animatedAvatar,
	domain.CheckAvatarFrame:           avatarFrame,
	domain.CheckMiniProfileBackground: profileBackgroundLike,
	domain.CheckProfileBackground:     profileBackgroundLike,
	domain.CheckSteamLevel:            steamLevel,
	domain.CheckFriends:               friends,
	domain.CheckCSGOInventory:         csgoInventory,
}

// Run interprets outcome for the named check. An unknown check name is a
// caller bug; it returns a transport_error verdict rather than panicking,
// matching spec.md §7's "unknown check names... logged at error level and
// skipped, not fatal."
func (v *Validator) Run(check domain.CheckName, outcome domain.Outcome) domain.Verdict {
	endpoint := domain.CheckEndpoints[check]
	fn, ok := checkFuncs[check]
	if !ok {
		return domain.VerdictTransportErr(endpoint, fmt.Sprintf("unknown check %q", check))
	}
	return fn(endpoint, outcome)
}

// fromOutcome handles the three outcome kinds shared by every check:
// deferred and transport-level failures pass straight through, leaving
// only the success path for the check-specific predicate. ok is false when
// the caller should return immediately with the verdict produced here.
func fromOutcome(endpoint domain.EndpointClass, outcome domain.Outcome) (domain.Verdict, bool) {
	switch outcome.Kind {
	case domain.OutcomeDeferred:
		return domain.VerdictDeferredResult(endpoint, outcome.WaitMs), false
	case domain.OutcomeFailed:
		return domain.VerdictTransportErr(endpoint, outcome.Message), false
	default:
		if outcome.IsPrivate {
			return domain.VerdictPrivate(nil), false
		}
		return domain.Verdict{}, true
	}
}

func animatedAvatar(endpoint domain.EndpointClass, outcome domain.Outcome) domain.Verdict {
	if v, cont := fromOutcome(endpoint, outcome); !cont {
		return v
	}
	var body struct {
		Avatar string `json:"avatar"`
	}
	hasField := decodeHasField(outcome.Body, &body, "avatar")
	passed := hasField && body.Avatar == ""
	return domain.VerdictOK(passed, map[string]any{"avatar": body.Avatar})
}

func avatarFrame(endpoint domain.EndpointClass, outcome domain.Outcome) domain.Verdict {
	if v, cont := fromOutcome(endpoint, outcome); !cont {
		return v
	}
	var body struct {
		AvatarFrame string `json:"avatar_frame"`
	}
	hasField := decodeHasField(outcome.Body, &body, "avatar_frame")
	passed := hasField && body.AvatarFrame == ""
	return domain.VerdictOK(passed, map[string]any{"avatar_frame": body.AvatarFrame})
}

// profileBackgroundLike backs both background checks: mini_profile_background
// and profile_background share the same "profile_background" response shape
// (spec.md §4.4).
func profileBackgroundLike(endpoint domain.EndpointClass, outcome domain.Outcome) domain.Verdict {
	if v, cont := fromOutcome(endpoint, outcome); !cont {
		return v
	}
	var body struct {
		ProfileBackground string `json:"profile_background"`
	}
	hasField := decodeHasField(outcome.Body, &body, "profile_background")
	passed := hasField && body.ProfileBackground == ""
	return domain.VerdictOK(passed, map[string]any{"profile_background": body.ProfileBackground})
}

func steamLevel(endpoint domain.EndpointClass, outcome domain.Outcome) domain.Verdict {
	if v, cont := fromOutcome(endpoint, outcome); !cont {
		return v
	}
	if len(outcome.Body) == 0 || isEmptyJSONObject(outcome.Body) {
		// Empty response from this endpoint signals a private profile;
		// flag it so the scheduler short-circuits friends/csgo_inventory.
		return domain.VerdictPrivate(nil)
	}

	var body struct {
		PlayerLevel int `json:"player_level"`
	}
	if err := json.Unmarshal(outcome.Body, &body); err != nil {
		return domain.VerdictTransportErr(endpoint, fmt.Sprintf("steam_level: decode response: %v", err))
	}
	passed := body.PlayerLevel <= 13
	return domain.VerdictOK(passed, map[string]any{"player_level": body.PlayerLevel})
}

func friends(endpoint domain.EndpointClass, outcome domain.Outcome) domain.Verdict {
	if v, cont := fromOutcome(endpoint, outcome); !cont {
		return v
	}
	var body struct {
		Friends []json.RawMessage `json:"friends"`
	}
	if err := json.Unmarshal(outcome.Body, &body); err != nil {
		return domain.VerdictTransportErr(endpoint, fmt.Sprintf("friends: decode response: %v", err))
	}
	passed := len(body.Friends) <= 60
	return domain.VerdictOK(passed, map[string]any{"friend_count": len(body.Friends)})
}

// csgoInventory treats a private inventory as desirable: both an empty
// body and the 401/403 private-data signal pass the check, since a locked
// inventory cannot itself be evidence of abuse (spec.md §4.4).
func csgoInventory(endpoint domain.EndpointClass, outcome domain.Outcome) domain.Verdict {
	switch outcome.Kind {
	case domain.OutcomeDeferred:
		return domain.VerdictDeferredResult(endpoint, outcome.WaitMs)
	case domain.OutcomeFailed:
		return domain.VerdictTransportErr(endpoint, outcome.Message)
	}

	if outcome.IsPrivate || len(outcome.Body) == 0 || isEmptyJSONObject(outcome.Body) {
		return domain.VerdictOK(true, nil)
	}

	var body struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(outcome.Body, &body); err != nil {
		return domain.VerdictTransportErr(endpoint, fmt.Sprintf("csgo_inventory: decode response: %v", err))
	}
	itemCount := len(body.Items)
	return domain.VerdictOK(itemCount == 0, map[string]any{"item_count": itemCount})
}

// decodeHasField decodes body into v and reports whether key was present
// in the raw JSON object, distinguishing an absent field from one present
// but holding the zero value.
func decodeHasField(body []byte, v any, key string) bool {
	if len(body) == 0 {
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return false
	}
	_, ok := raw[key]
	return ok
}

func isEmptyJSONObject(body []byte) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return false
	}
	return len(raw) == 0
}

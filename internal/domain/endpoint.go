package domain

import "strings"

// EndpointClass is the closed set of upstream endpoint classes, derived by
// URL pattern matching. Identity is by string tag so it round-trips
// cleanly through JSON as a map key.
type EndpointClass string

const (
	EndpointAnimatedAvatar        EndpointClass = "animated_avatar"
	EndpointAvatarFrame           EndpointClass = "avatar_frame"
	EndpointMiniProfileBackground EndpointClass = "mini_profile_background"
	EndpointProfileBackground     EndpointClass = "profile_background"
	EndpointSteamLevel            EndpointClass = "steam_level"
	EndpointFriends               EndpointClass = "friends"
	EndpointInventory             EndpointClass = "inventory"
	EndpointOther                 EndpointClass = "other"
)

// endpointPatterns is the fixed substring table from spec.md §6. First hit
// wins, so order matters: FriendList and inventory are checked before the
// generic patterns to keep the same precedence the upstream provider's
// legacy URL shapes rely on.
var endpointPatterns = []struct {
	substr string
	class  EndpointClass
}{
	{"GetFriendList", EndpointFriends},
	{"inventory", EndpointInventory},
	{"GetSteamLevel", EndpointSteamLevel},
	{"GetAnimatedAvatar", EndpointAnimatedAvatar},
	{"GetAvatarFrame", EndpointAvatarFrame},
	{"GetMiniProfileBackground", EndpointMiniProfileBackground},
	{"GetProfileBackground", EndpointProfileBackground},
}

// ClassifyURL maps an upstream URL to its endpoint class by substring
// match, first hit wins, defaulting to EndpointOther.
func ClassifyURL(url string) EndpointClass {
	for _, p := range endpointPatterns {
		if strings.Contains(url, p.substr) {
			return p.class
		}
	}
	return EndpointOther
}

// CheckEndpoints maps each fixed check to the endpoint class its Dispatcher
// call belongs to, so the Validator and Scheduler can report a known
// endpoint even on a Failed outcome, which carries no endpoint of its own.
var CheckEndpoints = map[CheckName]EndpointClass{
	CheckAnimatedAvatar:        EndpointAnimatedAvatar,
	CheckAvatarFrame:           EndpointAvatarFrame,
	CheckMiniProfileBackground: EndpointMiniProfileBackground,
	CheckProfileBackground:     EndpointProfileBackground,
	CheckSteamLevel:            EndpointSteamLevel,
	CheckFriends:               EndpointFriends,
	CheckCSGOInventory:         EndpointInventory,
}

// AllEndpointClasses lists every class, used when scanning a cooldown
// column for availability.
func AllEndpointClasses() []EndpointClass {
	return []EndpointClass{
		EndpointAnimatedAvatar,
		EndpointAvatarFrame,
		EndpointMiniProfileBackground,
		EndpointProfileBackground,
		EndpointSteamLevel,
		EndpointFriends,
		EndpointInventory,
		EndpointOther,
	}
}

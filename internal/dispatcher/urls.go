package dispatcher

import (
	"fmt"

	"steamgate/internal/domain"
)

// UpstreamBaseURL is the upstream provider's API host. It is not
// environment-configurable in spec.md §6; only the credential is.
const UpstreamBaseURL = "https://api.upstream-provider.test"

// checkPaths maps each fixed check to its upstream path template, each
// substring chosen to match the endpoint-class table in spec.md §6 so
// domain.ClassifyURL routes it to the right cooldown cell.
var checkPaths = map[domain.CheckName]string{
	domain.CheckAnimatedAvatar:        "/ISteamUser/GetAnimatedAvatar/v1/?steamid=%s&key=%s",
	domain.CheckAvatarFrame:           "/ISteamUser/GetAvatarFrame/v1/?steamid=%s&key=%s",
	domain.CheckMiniProfileBackground: "/ISteamUser/GetMiniProfileBackground/v1/?steamid=%s&key=%s",
	domain.CheckProfileBackground:     "/ISteamUser/GetProfileBackground/v1/?steamid=%s&key=%s",
	domain.CheckSteamLevel:            "/IPlayerService/GetSteamLevel/v1/?steamid=%s&key=%s",
	domain.CheckFriends:               "/ISteamUser/GetFriendList/v1/?steamid=%s&key=%s",
	domain.CheckCSGOInventory:         "/inventory/%s/730/2?l=english&count=5000&key=%s",
}

// BuildUpstreamURL constructs the upstream call URL for the named check
// and steamID, embedding credential the way the upstream provider expects
// it (spec.md §6).
func BuildUpstreamURL(check domain.CheckName, steamID, credential string) string {
	tmpl, ok := checkPaths[check]
	if !ok {
		return ""
	}
	return UpstreamBaseURL + fmt.Sprintf(tmpl, steamID, credential)
}

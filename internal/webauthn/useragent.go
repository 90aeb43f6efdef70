package webauthn

import (
	"strings"

	"github.com/fells-code/seamless-auth-go/internal/api"
)

// MetadataFromUserAgent derives a device label from a user-agent string.
// The label is cosmetic: it only makes the credential list readable, so
// unknown agents degrade to "Unknown" rather than an error.
func MetadataFromUserAgent(ua string) api.DeviceMetadata {
	browser := detectBrowser(ua)
	platform := detectPlatform(ua)

	name := browser
	if platform != "Unknown" {
		name = browser + " on " + platform
	}
	return api.DeviceMetadata{
		FriendlyName: name,
		Platform:     platform,
		Browser:      browser,
		DeviceInfo:   ua,
	}
}

// detectBrowser matches in token-precedence order: Edge and Opera embed
// "Chrome", Chrome embeds "Safari".
func detectBrowser(ua string) string {
	switch {
	case strings.Contains(ua, "Edg/") || strings.Contains(ua, "Edge/"):
		return "Edge"
	case strings.Contains(ua, "OPR/") || strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return "Unknown"
	}
}

func detectPlatform(ua string) string {
	switch {
	case strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad"):
		return "iOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Mac OS X") || strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return "Unknown"
	}
}

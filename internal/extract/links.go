// Package extract pulls structured profile fields out of free-text messages,
// with a regex heuristic tier beneath the model-backed path.
package extract

import (
	"strings"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// NormalizeLink turns a bare handle, @handle, or partial URL into a
// fully-qualified absolute URL for the given platform. Already-absolute URLs
// pass through with only a scheme fix.
func NormalizeLink(platform models.SocialPlatform, raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	if strings.Contains(s, ".") && strings.Contains(s, "/") {
		// Looks like a URL missing its scheme, e.g. "mais.co/rocktotal".
		return "https://" + s
	}
	handle := strings.TrimPrefix(s, "@")
	handle = strings.Trim(handle, " /")
	if handle == "" {
		return ""
	}
	switch platform {
	case models.PlatformInstagram:
		return "https://instagram.com/" + handle
	case models.PlatformYouTube:
		return "https://youtube.com/@" + handle
	case models.PlatformSpotify:
		return "https://open.spotify.com/artist/" + handle
	case models.PlatformSoundCloud:
		return "https://soundcloud.com/" + handle
	case models.PlatformBandcamp:
		return "https://" + handle + ".bandcamp.com"
	default:
		return "https://instagram.com/" + handle
	}
}

// SniffPlatform guesses the platform from a URL's domain, defaulting to
// Instagram when unrecognized.
func SniffPlatform(url string) models.SocialPlatform {
	u := strings.ToLower(url)
	switch {
	case strings.Contains(u, "youtube.com"), strings.Contains(u, "youtu.be"):
		return models.PlatformYouTube
	case strings.Contains(u, "spotify.com"):
		return models.PlatformSpotify
	case strings.Contains(u, "soundcloud.com"):
		return models.PlatformSoundCloud
	case strings.Contains(u, "bandcamp.com"):
		return models.PlatformBandcamp
	default:
		return models.PlatformInstagram
	}
}

// normalizeExtracted applies link normalization to every social field of an
// extraction result, in place.
func normalizeExtracted(e *models.ExtractedFields) {
	e.Instagram = NormalizeLink(models.PlatformInstagram, e.Instagram)
	e.YouTube = NormalizeLink(models.PlatformYouTube, e.YouTube)
	e.Spotify = NormalizeLink(models.PlatformSpotify, e.Spotify)
	e.SoundCloud = NormalizeLink(models.PlatformSoundCloud, e.SoundCloud)
	e.Bandcamp = NormalizeLink(models.PlatformBandcamp, e.Bandcamp)
}

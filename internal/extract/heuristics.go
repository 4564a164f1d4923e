package extract

import (
	"regexp"
	"strings"

	"github.com/PalcoLivre/StageLink/internal/models"
)

// personaExclusions are tokens that must never be extracted as a person/band
// name: the bot's own persona and generic assistant words echoed by users.
var personaExclusions = []string{"luna", "assistente", "assistant", "stagelink", "bot"}

// isExcludedName reports whether the candidate matches the persona exclusion
// list.
func isExcludedName(name string) bool {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, excl := range personaExclusions {
		if n == excl {
			return true
		}
	}
	return false
}

// Self-introduction patterns, Portuguese first since that is the primary
// audience, English as a secondary tier.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsomos\s+(?:a\s+|o\s+)?(?:banda\s+)?([\p{L}\d][\p{L}\d '&-]{1,60})`),
	regexp.MustCompile(`(?i)\bme\s+chamo\s+([\p{L}\d][\p{L}\d '&-]{1,60})`),
	regexp.MustCompile(`(?i)\bmeu\s+nome\s+(?:é|e)\s+([\p{L}\d][\p{L}\d '&-]{1,60})`),
	regexp.MustCompile(`(?i)\bbanda\s+([\p{L}\d][\p{L}\d '&-]{1,60})`),
	regexp.MustCompile(`(?i)\bmy\s+name\s+is\s+([\p{L}\d][\p{L}\d '&-]{1,60})`),
	regexp.MustCompile(`(?i)\bi\s*(?:'m|\s+am)\s+([\p{L}\d][\p{L}\d '&-]{1,60})`),
}

// genreKeywords is the closed keyword list the heuristic tier scans for.
var genreKeywords = []string{
	"rock", "pop", "mpb", "sertanejo", "forró", "forro", "rap", "hip hop",
	"funk", "samba", "pagode", "bossa nova", "gospel", "reggae", "jazz",
	"eletrônica", "eletronica", "techno", "house",
}

var (
	cityPattern       = regexp.MustCompile(`(?i)\b(?:de|em|from)\s+([\p{L}][\p{L} ]{2,40}?)(?:[,.!?\n]|\s+e\s|\s+we\s|$)`)
	instagramTagged   = regexp.MustCompile(`(?i)\binsta(?:gram)?\s*[:\s]\s*@?([\w.]+)`)
	youtubeTagged     = regexp.MustCompile(`(?i)\byoutube\s*[:\s]\s*@?([\w.-]+)`)
	bareHandlePattern = regexp.MustCompile(`(^|\s)@([\w.]{2,30})`)
	urlPattern        = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?([\w-]+\.[\w./-]+)`)
)

// heuristicExtract is the regex fallback pass used when every provider failed
// or the model output could not be parsed. Finds self-introductions, known
// genre keywords, and tagged or bare social handles. Returns an all-empty
// result when nothing matches.
func heuristicExtract(message string) models.ExtractedFields {
	var out models.ExtractedFields

	for _, pat := range namePatterns {
		if m := pat.FindStringSubmatch(message); m != nil {
			candidate := trimNameCandidate(m[1])
			if candidate != "" && !isExcludedName(candidate) {
				out.Name = candidate
				break
			}
		}
	}

	lower := strings.ToLower(message)
	for _, kw := range genreKeywords {
		if strings.Contains(lower, kw) {
			out.Genre = kw
			break
		}
	}

	if m := cityPattern.FindStringSubmatch(message); m != nil {
		candidate := strings.TrimSpace(m[1])
		// The intro patterns also match "de <city>" inside a name; only take a
		// city that does not duplicate the extracted name.
		if candidate != "" && !strings.EqualFold(candidate, out.Name) {
			out.City = candidate
		}
	}

	if m := instagramTagged.FindStringSubmatch(message); m != nil {
		out.Instagram = m[1]
	}
	if m := youtubeTagged.FindStringSubmatch(message); m != nil {
		out.YouTube = m[1]
	}
	if out.Instagram == "" {
		if m := bareHandlePattern.FindStringSubmatch(message); m != nil {
			out.Instagram = m[2]
		}
	}
	if out.Instagram == "" && out.YouTube == "" {
		if m := urlPattern.FindStringSubmatch(message); m != nil {
			url := m[1]
			switch SniffPlatform(url) {
			case models.PlatformYouTube:
				out.YouTube = url
			case models.PlatformSpotify:
				out.Spotify = url
			case models.PlatformSoundCloud:
				out.SoundCloud = url
			case models.PlatformBandcamp:
				out.Bandcamp = url
			default:
				out.Instagram = url
			}
		}
	}

	return out
}

// trimNameCandidate cuts a regex capture down to a plausible name: stops at
// filler words and trailing punctuation.
func trimNameCandidate(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, stop := range []string{" de ", " do ", " da ", " e tocamos", " e somos", " from ", " and ", " we "} {
		if idx := strings.Index(lower, stop); idx > 0 {
			s = s[:idx]
			lower = lower[:idx]
		}
	}
	return strings.Trim(s, " ,.!?")
}

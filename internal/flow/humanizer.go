package flow

import "strings"

// Output shaping constants.
const (
	// humanizeThreshold is the reply length above which splitting kicks in.
	humanizeThreshold = 300
	// chunkSeparator joins the split chunks into one outbound body.
	chunkSeparator = "\n\n---\n\n"
	// maxChunks bounds the split.
	maxChunks = 3
)

// Humanize splits a long reply into 2-3 coherent chunks joined by a visible
// separator, mimicking natural multi-message chat pacing. Short replies pass
// through unchanged.
func Humanize(reply string) string {
	if len([]rune(reply)) <= humanizeThreshold {
		return reply
	}
	chunks := splitCoherent(reply)
	return strings.Join(chunks, chunkSeparator)
}

// splitCoherent prefers paragraph boundaries, then sentence boundaries,
// packing pieces into at most maxChunks roughly even chunks.
func splitCoherent(text string) []string {
	pieces := strings.Split(text, "\n\n")
	if len(pieces) < 2 {
		pieces = splitSentences(text)
	}
	if len(pieces) < 2 {
		return []string{text}
	}

	target := (len([]rune(text)) / maxChunks) + 1
	var chunks []string
	var current strings.Builder
	for _, piece := range pieces {
		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(piece)) > target && len(chunks) < maxChunks-1 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(piece)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

// splitSentences breaks text at sentence-ending punctuation.
func splitSentences(text string) []string {
	var pieces []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				pieces = append(pieces, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}

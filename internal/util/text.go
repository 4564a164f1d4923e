package util

import (
	"strings"
	"unicode"
)

// lowercase connectives that stay lowercase mid-name in Portuguese titles,
// e.g. "Banda do Mar", "Forró de Favela".
var titleSmallWords = map[string]bool{
	"de": true, "da": true, "do": true, "das": true, "dos": true,
	"e": true, "a": true, "o": true,
}

// TitleCase capitalizes the first rune of each word, keeping Portuguese
// connectives lowercase except at the start.
func TitleCase(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for i, w := range words {
		lower := strings.ToLower(w)
		if i > 0 && titleSmallWords[lower] {
			words[i] = lower
			continue
		}
		runes := []rune(lower)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

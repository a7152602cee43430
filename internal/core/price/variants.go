package price

import (
	"strings"
	"unicode"
)

// SearchVariants renders cardName the ways the price search matches best, in
// order: hyphens as spaces, lower-cased alphanumerics only, then the trimmed
// original. Duplicates are dropped keeping the first position.
func SearchVariants(cardName string) []string {
	original := strings.TrimSpace(cardName)
	if original == "" {
		return nil
	}

	spaced := collapseSpaces(strings.ReplaceAll(original, "-", " "))

	stripped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, original)
	stripped = collapseSpaces(stripped)

	var out []string
	seen := make(map[string]bool, 3)
	for _, v := range []string{spaced, stripped, original} {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package usecase

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Package-level compiled regex patterns for performance
var (
	nonNameCharsRegex   = regexp.MustCompile(`[^a-z0-9\x{0430}-\x{044f} ]`)
	multipleSpacesRegex = regexp.MustCompile(` +`)
)

var yoReplacer = strings.NewReplacer("ё", "е")

// NormalizeName canonicalizes a product title into the key used to match the
// same product across stores: lowercase, diacritics folded (ё→е), only Latin
// and Cyrillic letters, digits and single spaces kept, trimmed.
func NormalizeName(title string) string {
	if title == "" {
		return ""
	}

	name := strings.ToLower(title)
	name = foldDiacritics(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, name)
	name = nonNameCharsRegex.ReplaceAllString(name, "")
	name = multipleSpacesRegex.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// foldDiacritics strips combining marks from non-Cyrillic letters and folds ё to е.
// Cyrillic letters such as й are letters of their own and stay intact.
func foldDiacritics(s string) string {
	s = yoReplacer.Replace(norm.NFC.String(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < utf8.RuneSelf || unicode.Is(unicode.Cyrillic, r) {
			b.WriteRune(r)
			continue
		}
		for _, d := range norm.NFD.String(string(r)) {
			if !unicode.Is(unicode.Mn, d) {
				b.WriteRune(d)
			}
		}
	}
	return b.String()
}

package usecase

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// NameSimilarity scores two normalized product names in [0, 1].
//
// The score is the lower of the Jaro-Winkler similarity of the whole names
// and a token overlap ratio that tolerates small typos in long words, so a
// pair must agree both as strings and word by word. Names that carry
// different numbers (pack sizes, volumes, fat content) never match.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	wordsA, numbersA := splitTokens(a)
	wordsB, numbersB := splitTokens(b)
	if !sameTokens(numbersA, numbersB) {
		return 0
	}

	overlap := tokenOverlap(wordsA, wordsB)
	if overlap == 0 {
		return 0
	}
	return min(matchr.JaroWinkler(a, b, false), overlap)
}

// splitTokens separates word tokens from numeric tokens.
// Single-rune words carry no signal and are dropped.
func splitTokens(name string) (words, numbers []string) {
	for _, token := range strings.Fields(name) {
		switch {
		case isNumeric(token):
			numbers = append(numbers, token)
		case utf8.RuneCountInString(token) > 1:
			words = append(words, token)
		}
	}
	return words, numbers
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if !unicode.IsDigit(c) {
			return false
		}
	}
	return len(s) > 0
}

// sameTokens compares two token lists as multisets
func sameTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, t := range a {
		counts[t]++
	}
	for _, t := range b {
		counts[t]--
		if counts[t] < 0 {
			return false
		}
	}
	return true
}

// tokenOverlap is a Jaccard ratio where each token of b may pair with at most
// one token of a, either exactly or through fuzzyTokenMatch.
func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	used := make([]bool, len(b))
	matched := 0
	for _, left := range a {
		for j, right := range b {
			if used[j] {
				continue
			}
			if left == right || fuzzyTokenMatch(left, right) {
				used[j] = true
				matched++
				break
			}
		}
	}

	union := len(a) + len(b) - matched
	return float64(matched) / float64(union)
}

// fuzzyTokenMatch checks if two words are within the edit distance allowed for their length.
// Words shorter than 4 runes must match exactly.
func fuzzyTokenMatch(left, right string) bool {
	shorter := min(utf8.RuneCountInString(left), utf8.RuneCountInString(right))
	var maxDistance int
	switch {
	case shorter < 4:
		return false
	case shorter < 8:
		maxDistance = 1
	default:
		maxDistance = 2
	}

	lenDiff := utf8.RuneCountInString(left) - utf8.RuneCountInString(right)
	if lenDiff < -maxDistance || lenDiff > maxDistance {
		return false
	}
	return matchr.Levenshtein(left, right) <= maxDistance
}

// Package filter masks configured words out of message bodies.
package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mask replaces every case-insensitive occurrence of each word with '*'
// repeated once per rune of the match. Words are applied in order and empty
// words are ignored. Masking already-masked text is a no-op unless a word
// itself contains '*'.
func Mask(body string, words []string) string {
	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}
		body = maskWord(body, []rune(word))
	}
	return body
}

func maskWord(body string, word []rune) string {
	text := []rune(body)
	if len(word) > len(text) {
		return body
	}
	changed := false
	for i := 0; i+len(word) <= len(text); {
		if matchAt(text, i, word) {
			for j := i; j < i+len(word); j++ {
				text[j] = '*'
			}
			changed = true
			i += len(word)
			continue
		}
		i++
	}
	if !changed {
		return body
	}
	return string(text)
}

func matchAt(text []rune, at int, word []rune) bool {
	for k, r := range word {
		if !equalFold(text[at+k], r) {
			return false
		}
	}
	return true
}

// equalFold compares two runes under simple Unicode case folding, so that
// dotted and dotless forms such as 'İ' and 'i' are tried through their fold
// orbit rather than a single ToLower mapping.
func equalFold(a, b rune) bool {
	if a == b {
		return true
	}
	if a < utf8.RuneSelf && b < utf8.RuneSelf {
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		return a == b
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return unicode.ToLower(a) == unicode.ToLower(b)
}

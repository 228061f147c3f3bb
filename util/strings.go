package util

import (
	"strings"
	"unicode"
)

// RemoveSuffixes checks each of suffixes in order, and if s currently ends
// with it, removes every occurrence of it from s, not just the trailing one.
// For example, RemoveSuffixes("abcXYZabc", []string{"abc"}) is "XYZ".
func RemoveSuffixes(s string, suffixes []string) string {
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(s, suffix) {
			s = strings.Replace(s, suffix, "", -1)
		}
	}
	return s
}

// IsAlphaOrDigit reports whether s is nonempty and consists only of letters,
// or only of digits.
func IsAlphaOrDigit(s string) bool {
	if s == "" {
		return false
	}
	return allRunes(s, unicode.IsLetter) || allRunes(s, unicode.IsDigit)
}

func allRunes(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

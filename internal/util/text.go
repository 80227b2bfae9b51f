package util

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

var (
	reNonAllowed = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	reSpaces     = regexp.MustCompile(`\s+`)
	reWords      = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// Normalize returns the lower-case comparison form of s.
func Normalize(s string) string {
	return NormalizeCase(s, true)
}

// NormalizeCase strips punctuation, collapses whitespace, folds case and trims.
// It is idempotent.
func NormalizeCase(s string, lower bool) string {
	if s == "" {
		return ""
	}
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	if lower {
		s = strings.ToLower(s)
	} else {
		s = strings.ToUpper(s)
	}
	return strings.TrimSpace(s)
}

// ColumnKey is the form header cells and alias keys are compared in:
// lower-case letters and digits only.
func ColumnKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tokens splits the normalized form of s into words.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// FilenameTokens splits a file's base name into normalized words and removes
// the excluded ones.
func FilenameTokens(path string, exclude []string) []string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[Normalize(e)] = struct{}{}
	}

	out := []string{}
	for _, part := range strings.Split(base, "_") {
		for _, w := range reWords.FindAllString(part, -1) {
			w = Normalize(w)
			if w == "" {
				continue
			}
			if _, ok := skip[w]; ok {
				continue
			}
			out = append(out, w)
		}
	}
	return out
}

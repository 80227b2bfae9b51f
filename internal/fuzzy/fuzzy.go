// Package fuzzy scores the similarity of two normalized names on a 0-100
// scale and picks the best candidate from a set.
package fuzzy

import (
	"math"
	"sort"
	"strings"

	"github.com/xrash/smetrics"
)

// Scorer returns a similarity score between 0 and 100.
type Scorer func(a, b string) int

// Ratio is the Jaro-Winkler similarity scaled to 0-100. Shared prefixes are
// weighted up, which suits company names that differ in their suffix.
func Ratio(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	return scale(smetrics.JaroWinkler(a, b, 0.7, 4))
}

// IndelRatio is the edit similarity with insertions and deletions only:
// (len(a)+len(b)-distance) / (len(a)+len(b)).
func IndelRatio(a, b string) int {
	lensum := len(a) + len(b)
	if lensum == 0 {
		return 0
	}
	if a == b {
		return 100
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 2)
	return scale(float64(lensum-dist) / float64(lensum))
}

// TokenSortRatio compares the two strings with their words sorted.
func TokenSortRatio(a, b string) int {
	return IndelRatio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared words of a and b against each side's
// remainder, so a name that is a word-subset of another scores high.
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, diffA, diffB []string
	for w := range ta {
		if _, ok := tb[w]; ok {
			inter = append(inter, w)
		} else {
			diffA = append(diffA, w)
		}
	}
	for w := range tb {
		if _, ok := ta[w]; !ok {
			diffB = append(diffB, w)
		}
	}
	sort.Strings(inter)
	sort.Strings(diffA)
	sort.Strings(diffB)

	t0 := strings.Join(inter, " ")
	t1 := strings.TrimSpace(t0 + " " + strings.Join(diffA, " "))
	t2 := strings.TrimSpace(t0 + " " + strings.Join(diffB, " "))

	best := IndelRatio(t1, t2)
	if t0 != "" {
		best = max(best, IndelRatio(t0, t1), IndelRatio(t0, t2))
	}
	return best
}

type Match struct {
	Candidate string
	Score     int
}

// ExtractOne returns the highest scoring candidate at or above cutoff.
// Ties go to the lexically smallest candidate.
func ExtractOne(query string, candidates []string, scorer Scorer, cutoff int) (Match, bool) {
	sorted := make([]string, len(candidates))
	copy(sorted, candidates)
	sort.Strings(sorted)

	best := Match{Score: -1}
	for _, c := range sorted {
		score := scorer(query, c)
		if score > best.Score {
			best = Match{Candidate: c, Score: score}
		}
	}
	if best.Score < cutoff || best.Score < 0 {
		return Match{}, false
	}
	return best, true
}

func scale(v float64) int {
	return int(math.Round(v * 100))
}

func sortedTokens(s string) string {
	words := strings.Fields(s)
	sort.Strings(words)
	return strings.Join(words, " ")
}

func tokenSet(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, w := range strings.Fields(s) {
		out[w] = struct{}{}
	}
	return out
}

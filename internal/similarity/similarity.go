// Package similarity scores how alike two merchant names or descriptions are, on a 0-100
// scale. The Merchant Resolver and the Deduplicator share it so both use the same notion
// of "close enough".
package similarity

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Process lower-cases s, turns everything that is not a letter or digit into a space and
// collapses runs of whitespace.
func Process(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Ratio is the normalized edit-distance similarity of a and b.
func Ratio(a, b string) int {
	return ratio([]rune(a), []rune(b))
}

func ratio(a, b []rune) int {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(string(a), string(b))
	longest := max(len(a), len(b))
	return int(math.Round(100 * float64(longest-dist) / float64(longest)))
}

// PartialRatio is the best Ratio of the shorter string against every same-length window of
// the longer one.
func PartialRatio(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := ratio(short, long[i:i+len(short)]); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

// TokenSortRatio compares a and b after sorting their words.
func TokenSortRatio(a, b string) int {
	return Ratio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared words of a and b against each side's remainder, so that
// extra words on one side cost little.
func TokenSetRatio(a, b string) int {
	ta, tb := tokenSet(a), tokenSet(b)
	var common, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := Ratio(withA, withB)
	if base != "" {
		best = max(best, Ratio(base, withA), Ratio(base, withB))
	}
	return best
}

// WRatio is a weighted blend of the ratios above, in the manner of fuzzywuzzy's WRatio.
// Inputs are processed first; an empty side scores 0.
func WRatio(a, b string) int {
	pa, pb := Process(a), Process(b)
	if pa == "" || pb == "" {
		return 0
	}
	if pa == pb {
		return 100
	}

	base := Ratio(pa, pb)
	la, lb := len([]rune(pa)), len([]rune(pb))
	lenRatio := float64(max(la, lb)) / float64(min(la, lb))

	const unbaseScale = 0.95
	if lenRatio < 1.5 {
		tsort := float64(TokenSortRatio(pa, pb)) * unbaseScale
		tset := float64(TokenSetRatio(pa, pb)) * unbaseScale
		return int(math.Round(math.Max(float64(base), math.Max(tsort, tset))))
	}

	partialScale := 0.9
	if lenRatio > 8 {
		partialScale = 0.6
	}
	partial := float64(PartialRatio(pa, pb)) * partialScale
	ptsort := float64(PartialRatio(sortedTokens(pa), sortedTokens(pb))) * unbaseScale * partialScale
	ptset := float64(TokenSetRatio(pa, pb)) * unbaseScale * partialScale
	return int(math.Round(math.Max(float64(base), math.Max(partial, math.Max(ptsort, ptset)))))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		set[t] = true
	}
	return set
}

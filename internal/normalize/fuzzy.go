package normalize

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// fold lowercases s across scripts for comparison.
func fold(s string) string {
	return foldCaser.String(strings.TrimSpace(s))
}

// tokenSetRatio scores the similarity of two strings on a 0-100 scale,
// ignoring token order and duplication: both inputs are tokenized into sets
// and the best of the intersection-vs-remainder comparisons wins. Case is
// folded before comparison.
func tokenSetRatio(a, b string) int {
	ta := tokenSet(fold(a))
	tb := tokenSet(fold(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var inter, diffA, diffB []string
	for tok := range ta {
		if tb[tok] {
			inter = append(inter, tok)
		} else {
			diffA = append(diffA, tok)
		}
	}
	for tok := range tb {
		if !ta[tok] {
			diffB = append(diffB, tok)
		}
	}
	sort.Strings(inter)
	sort.Strings(diffA)
	sort.Strings(diffB)

	base := strings.Join(inter, " ")
	combinedA := joinNonEmpty(base, strings.Join(diffA, " "))
	combinedB := joinNonEmpty(base, strings.Join(diffB, " "))

	best := similarity(base, combinedA)
	if s := similarity(base, combinedB); s > best {
		best = s
	}
	if s := similarity(combinedA, combinedB); s > best {
		best = s
	}
	return best
}

func similarity(a, b string) int {
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	return int(levenshtein.Similarity(a, b, nil) * 100)
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '-' || r == '_' || r == '/' || r == ',' || r == '.'
	}) {
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

// matchOption reconciles a raw value against an option list. Exact
// case-insensitive match wins outright; otherwise the first option in list
// order with the maximal token-set score at or above threshold is chosen.
// Returns the canonical option and whether any match qualified.
func matchOption(raw string, options []string, threshold int) (string, bool) {
	folded := fold(raw)
	for _, opt := range options {
		if fold(opt) == folded {
			return opt, true
		}
	}

	bestScore := -1
	bestOpt := ""
	for _, opt := range options {
		if score := tokenSetRatio(raw, opt); score > bestScore {
			bestScore = score
			bestOpt = opt
		}
	}
	if bestScore >= threshold && bestOpt != "" {
		return bestOpt, true
	}
	return "", false
}

package extract

import (
	"strings"
	"unicode"
)

// dedupe drops candidates that repeat an earlier one: identical after
// normalization, or sharing at least threshold of their word sets.
// The first occurrence wins.
func dedupe(cands []Candidate, threshold float64) []Candidate {
	type seen struct {
		norm  string
		words map[string]bool
	}
	var kept []seen
	out := make([]Candidate, 0, len(cands))

next:
	for _, c := range cands {
		norm := normalize(c.Text)
		words := wordSet(norm)
		for _, k := range kept {
			if k.norm == norm || jaccard(k.words, words) >= threshold {
				continue next
			}
		}
		kept = append(kept, seen{norm: norm, words: words})
		out = append(out, c)
	}
	return out
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func wordSet(norm string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(norm) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

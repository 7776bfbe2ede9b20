package extract

import (
	"strings"
	"unicode/utf8"
)

// FinalFilter drops pairs with an empty side, pairs whose "owner=number"
// form is three characters or shorter, and pairs whose owner mentions
// "owner". Duplicates by (owner, number) keep their first position.
func FinalFilter(pairs []Pair) []Pair {
	out := make([]Pair, 0, len(pairs))
	seen := make(map[[2]string]bool, len(pairs))
	for _, p := range pairs {
		p.Owner = strings.TrimSpace(p.Owner)
		p.Number = strings.TrimSpace(p.Number)
		if p.Owner == "" || p.Number == "" {
			continue
		}
		if utf8.RuneCountInString(p.String()) <= 3 {
			continue
		}
		if strings.Contains(fold(p.Owner), "owner") {
			continue
		}
		key := [2]string{p.Owner, p.Number}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

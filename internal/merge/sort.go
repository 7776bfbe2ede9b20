package merge

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/crossref-cli/internal/tabular"
)

// SortStable orders t by the first column whose normalized header contains
// column. Comparison is case-insensitive, empty values sort last and ties
// keep their merge order. It returns the resolved column name and false
// when no column matches.
func SortStable(t *tabular.Table, column string) (string, bool) {
	s := tabular.Resolve(t.Header, nil)
	idx, ok := s.Find(column)
	if !ok {
		return "", false
	}
	fold := cases.Fold()
	slices.SortStableFunc(t.Rows, func(a, b []string) int {
		av, bv := strings.TrimSpace(cell(a, idx)), strings.TrimSpace(cell(b, idx))
		switch {
		case av == "" && bv == "":
			return 0
		case av == "":
			return 1
		case bv == "":
			return -1
		}
		return strings.Compare(fold.String(av), fold.String(bv))
	})
	return s.Header[idx], true
}

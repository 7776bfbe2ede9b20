package tabular

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Field is a semantic column resolved from heterogeneous headers.
type Field string

const (
	FieldItemCode Field = "item code"
	FieldOwner    Field = "owner"
	FieldNumber   Field = "number"
)

// Rule maps a semantic field to the substrings a normalized header must
// contain.
type Rule struct {
	Field    Field
	Contains []string
}

// DefaultRules resolves the cross-reference columns. ItemCode, Item Code and
// ITEM CODE all normalize to a header matching the item-code rule.
var DefaultRules = []Rule{
	{Field: FieldItemCode, Contains: []string{"item", "code"}},
	{Field: FieldOwner, Contains: []string{"owner"}},
	{Field: FieldNumber, Contains: []string{"number"}},
}

// NormalizeHeader trims and lower-cases a header cell. Casers are stateful,
// so each call builds its own.
func NormalizeHeader(h string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// Schema records which column index each field resolved to.
type Schema struct {
	Header []string // normalized
	index  map[Field]int
}

// Resolve applies rules to header. For each rule the first column, scanning
// left to right, that contains every substring wins; later matches are
// ignored. Rules are independent, so one column may satisfy several.
func Resolve(header []string, rules []Rule) Schema {
	s := Schema{Header: make([]string, len(header)), index: make(map[Field]int, len(rules))}
	for i, h := range header {
		s.Header[i] = NormalizeHeader(h)
	}
	for _, r := range rules {
		if _, done := s.index[r.Field]; done {
			continue
		}
		for i, h := range s.Header {
			if containsAll(h, r.Contains) {
				s.index[r.Field] = i
				break
			}
		}
	}
	return s
}

// Index returns the column for f and whether it resolved.
func (s Schema) Index(f Field) (int, bool) {
	i, ok := s.index[f]
	return i, ok
}

// Get returns the trimmed value of f in row, or "" when unresolved.
func (s Schema) Get(row []string, f Field) string {
	i, ok := s.index[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Find returns the first normalized header containing sub.
func (s Schema) Find(sub string) (int, bool) {
	sub = NormalizeHeader(sub)
	for i, h := range s.Header {
		if strings.Contains(h, sub) {
			return i, true
		}
	}
	return -1, false
}

func containsAll(h string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(h, sub) {
			return false
		}
	}
	return len(subs) > 0
}

package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/crossref-cli/internal/model"
)

// Classification is the classifier's verdict for one response.
type Classification struct {
	Status      model.Status
	ItemType    string
	MatchedCode string
	Details     string
}

// Classifier decides whether a response is a hit, a miss or needs a human.
type Classifier struct {
	matched *regexp.Regexp
	noData  []string
	zero    []string
	found   []string
	types   []foldedType
}

type foldedType struct {
	label    string
	keywords []string
}

// NewClassifier folds the profile's markers once for reuse.
func NewClassifier(p *Profile) (*Classifier, error) {
	re, err := compileMatched(p.MatchedCodePattern)
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		matched: re,
		noData:  foldAll(p.NoDataMarkers),
		zero:    foldAll(p.ZeroResultMarkers),
		found:   foldAll(p.FoundMarkers),
	}
	for _, t := range p.ItemTypes {
		c.types = append(c.types, foldedType{label: t.Label, keywords: foldAll(t.Keywords)})
	}
	return c, nil
}

// Classify inspects the visible text of a response for code. Miss markers
// take precedence over hit markers.
func (c *Classifier) Classify(text, code string) Classification {
	folded := fold(text)

	if containsAny(folded, c.noData) || containsAnyStandalone(folded, c.zero) {
		return Classification{Status: model.StatusNotFound, Details: "no data found"}
	}

	code = model.NormalizeCode(code)
	if !containsAny(folded, c.found) && (code == "" || !strings.Contains(folded, fold(code))) {
		return Classification{Status: model.StatusCheckManual, Details: "ambiguous response"}
	}

	out := Classification{Status: model.StatusFound, ItemType: model.ItemTypeOther}
	for _, t := range c.types {
		if containsAny(folded, t.keywords) {
			out.ItemType = t.label
			break
		}
	}

	if c.matched != nil {
		if m := c.matched.FindStringSubmatch(text); len(m) > 1 {
			out.MatchedCode = m[1]
		}
	}

	out.Details = out.ItemType
	if out.MatchedCode != "" {
		out.Details += " - " + out.MatchedCode
	}
	return out
}

func compileMatched(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: compile matched_code_pattern %q", pattern)
	}
	if re.NumSubexp() < 1 {
		return nil, eris.Errorf("extract: matched_code_pattern %q needs a capture group", pattern)
	}
	return re, nil
}

// fold case-folds s for case-insensitive comparison. A Caser holds state,
// so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, fold(s))
		}
	}
	return out
}

// containsAnyStandalone is containsAny that ignores matches glued to a
// preceding letter or digit, so "0 result" does not fire on "10 results".
func containsAnyStandalone(s string, subs []string) bool {
	for _, sub := range subs {
		for from := 0; ; {
			i := strings.Index(s[from:], sub)
			if i < 0 {
				break
			}
			at := from + i
			if at == 0 || !isAlnum(s[at-1]) {
				return true
			}
			from = at + 1
		}
	}
	return false
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

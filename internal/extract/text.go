package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/crossref-cli/internal/catalog"
)

// textState is a phase of the plain-text scan.
type textState int

const (
	// seekSection looks for the section keyword.
	seekSection textState = iota
	// seekHeader looks for the owner header line inside the section.
	seekHeader
	// collect gathers candidate lines until a stop keyword.
	collect
	// pairing consumes collected lines two at a time.
	pairing
)

// TextStrategy scans flattened page text. It needs no DOM, so it is also the
// only strategy available for pages saved as plain text.
type TextStrategy struct {
	section string
	owners  []string
	numbers []string
	stops   []string
}

// NewTextStrategy builds the text scanner from the profile keywords.
func NewTextStrategy(p *Profile) *TextStrategy {
	return &TextStrategy{
		section: p.SectionKeyword,
		owners:  foldAll(p.OwnerHeaders),
		numbers: foldAll(p.NumberHeaders),
		stops:   foldAll(p.StopKeywords),
	}
}

func (t *TextStrategy) Name() string { return "text" }

// Extract runs Parse over the page text.
func (t *TextStrategy) Extract(_ context.Context, c *catalog.Content) ([]Pair, error) {
	return t.Parse(c.Text), nil
}

// line is a collected line, or a pair already written as owner=number.
type line struct {
	text   string
	formed *Pair
}

// Parse recovers pairs from text. Text without the section keyword, or
// without an owner header after it, yields nothing.
func (t *TextStrategy) Parse(text string) []Pair {
	lines := splitLines(text)
	state := seekSection
	var collected []line

	for i := 0; i < len(lines) && state != pairing; i++ {
		l := lines[i]
		switch state {
		case seekSection:
			at := indexFold(l, t.section)
			if at < 0 {
				continue
			}
			state = seekHeader
			// Whatever follows the keyword on its own line is still section text.
			if rest := strings.TrimSpace(l[at+len(t.section):]); rest != "" {
				lines[i] = rest
				i--
			}
		case seekHeader:
			if hasPrefixAny(fold(l), t.owners) {
				state = collect
			}
		case collect:
			if t.isStop(l) {
				state = pairing
				continue
			}
			if t.isHeader(l) {
				continue
			}
			if owner, number, ok := strings.Cut(l, "="); ok {
				collected = append(collected, line{formed: &Pair{
					Owner:  strings.TrimSpace(owner),
					Number: strings.TrimSpace(number),
				}})
				continue
			}
			collected = append(collected, line{text: l})
		}
	}

	if state == seekSection || state == seekHeader {
		return nil
	}
	return t.pair(collected)
}

// pair consumes owner/number line pairs. A line that cannot start a valid
// pair is skipped on its own so one stray line does not shift every pair
// after it.
func (t *TextStrategy) pair(lines []line) []Pair {
	var out []Pair
	for i := 0; i < len(lines); {
		cur := lines[i]
		if cur.formed != nil {
			out = append(out, *cur.formed)
			i++
			continue
		}
		if i+1 < len(lines) && lines[i+1].formed == nil && t.acceptable(cur.text, lines[i+1].text) {
			out = append(out, Pair{Owner: cur.text, Number: lines[i+1].text})
			i += 2
			continue
		}
		i++
	}
	return out
}

func (t *TextStrategy) acceptable(owner, number string) bool {
	if utf8.RuneCountInString(owner) <= 1 || utf8.RuneCountInString(number) <= 1 {
		return false
	}
	return !hasPrefixAny(fold(owner), t.numbers) && !hasPrefixAny(fold(number), t.owners)
}

// isHeader matches a bare column header such as "Owner" or "NUMBER:".
func (t *TextStrategy) isHeader(l string) bool {
	f := strings.TrimSpace(strings.TrimSuffix(fold(l), ":"))
	return equalsAny(f, t.owners) || equalsAny(f, t.numbers)
}

// isStop matches a section label. A single-word keyword must be the whole
// line, optionally followed by a colon, so "Application" and "Vehicle: X"
// stop the scan while owners such as "Brand Motors" or "BrandX" do not.
// Multi-word keywords like "car maker" match as a leading phrase.
func (t *TextStrategy) isStop(l string) bool {
	f := strings.TrimSpace(fold(l))
	for _, kw := range t.stops {
		if !strings.HasPrefix(f, kw) {
			continue
		}
		rest := f[len(kw):]
		if rest == "" || rest[0] == ':' {
			return true
		}
		if strings.Contains(kw, " ") && !isAlnum(rest[0]) {
			return true
		}
	}
	return false
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// indexFold is a case-insensitive strings.Index for keywords whose case
// variants share a byte length, which holds for ASCII keywords.
func indexFold(s, sub string) int {
	if sub == "" {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func hasPrefixAny(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func equalsAny(s string, opts []string) bool {
	for _, o := range opts {
		if s == o {
			return true
		}
	}
	return false
}

package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/crossref-cli/internal/catalog"
)

var multiSpace = regexp.MustCompile(`\s{2,}|\t`)

// visible reports whether neither the element nor an ancestor is hidden by
// the hidden attribute or an inline style.
func visible(sel *goquery.Selection) bool {
	for n := sel.First(); n.Length() > 0; n = n.Parent() {
		if _, ok := n.Attr("hidden"); ok {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(n.AttrOr("style", "")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

// firstVisible returns the first visible element matching selector.
func firstVisible(root *goquery.Selection, selector string) *goquery.Selection {
	var found *goquery.Selection
	root.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if visible(s) {
			found = s
			return false
		}
		return true
	})
	return found
}

// oneLine returns the rendered text of sel on one line.
func oneLine(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// blockLines returns the rendered text of sel split at block boundaries.
func blockLines(sel *goquery.Selection) []string {
	t := catalog.VisibleText(sel)
	if t == "" {
		return nil
	}
	return strings.Split(t, "\n")
}

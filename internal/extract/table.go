package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/catalog"
)

// TableStrategy activates the crosses tab when it is a link, then reads the
// first visible crosses table.
type TableStrategy struct {
	tab       string
	selectors []string
	labels    []string
}

// NewTableStrategy builds the table scanner from the profile.
func NewTableStrategy(p *Profile) *TableStrategy {
	return &TableStrategy{
		tab:       fold(p.TabKeyword),
		selectors: p.TableSelectors,
		labels:    foldAll(append(append([]string{}, p.OwnerHeaders...), p.NumberHeaders...)),
	}
}

func (t *TableStrategy) Name() string { return "table" }

// Extract reads the crosses table. The tab target is probed first and the
// original page second.
func (t *TableStrategy) Extract(ctx context.Context, c *catalog.Content) ([]Pair, error) {
	if c.Doc == nil {
		return nil, nil
	}

	pages := []*catalog.Content{c}
	if tab := t.activateTab(ctx, c); tab != nil {
		pages = []*catalog.Content{tab, c}
	}

	for _, page := range pages {
		if page.Doc == nil {
			continue
		}
		for _, sel := range t.selectors {
			table := firstVisible(page.Doc.Selection, sel)
			if table == nil {
				continue
			}
			zap.L().Debug("extract: crosses table found", zap.String("selector", sel), zap.String("url", page.URL))
			return t.readRows(table), nil
		}
	}
	return nil, nil
}

// activateTab follows the first crosses tab that navigates somewhere. Tabs
// that only toggle in-page content leave the current page in place.
func (t *TableStrategy) activateTab(ctx context.Context, c *catalog.Content) *catalog.Content {
	if t.tab == "" {
		return nil
	}
	var target string
	c.Doc.Find(`a, button, [role="tab"], [data-href]`).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		if !t.mentionsTab(el) {
			return true
		}
		href := strings.TrimSpace(el.AttrOr("data-href", el.AttrOr("href", "")))
		if navigable(href) {
			target = href
			return false
		}
		return true
	})
	if target == "" {
		return nil
	}

	opened, err := c.Open(ctx, target)
	if err != nil {
		zap.L().Debug("extract: crosses tab could not be opened", zap.String("href", target), zap.Error(err))
		return nil
	}
	return opened
}

func (t *TableStrategy) mentionsTab(el *goquery.Selection) bool {
	return strings.Contains(fold(oneLine(el)), t.tab) ||
		strings.Contains(fold(el.AttrOr("class", "")), t.tab) ||
		strings.Contains(fold(el.AttrOr("id", "")), t.tab)
}

// readRows reads every row after the header. Each row is tried as cells,
// then as one cell holding both values, then as div columns.
func (t *TableStrategy) readRows(table *goquery.Selection) []Pair {
	var out []Pair
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		var owner, number string
		cells := row.Find("td")
		switch {
		case cells.Length() >= 2:
			owner, number = oneLine(cells.Eq(0)), oneLine(cells.Eq(1))
		case cells.Length() == 1:
			parts := multiSpace.Split(strings.TrimSpace(row.Text()), -1)
			if len(parts) >= 2 {
				owner, number = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			}
		default:
			if divs := row.Find("div"); divs.Length() >= 2 {
				owner, number = oneLine(divs.Eq(0)), oneLine(divs.Eq(1))
			}
		}
		if owner == "" || number == "" || t.isLabel(owner) {
			return
		}
		out = append(out, Pair{Owner: owner, Number: number})
	})
	return out
}

func (t *TableStrategy) isLabel(owner string) bool {
	return equalsAny(strings.TrimSpace(strings.TrimSuffix(fold(owner), ":")), t.labels)
}

func navigable(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	return !strings.HasPrefix(strings.ToLower(href), "javascript:")
}

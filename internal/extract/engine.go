package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/catalog"
)

// Engine runs an ordered strategy chain over a page. The first strategy
// whose filtered output is non-empty wins.
type Engine struct {
	strategies   []Strategy
	text         *TextStrategy
	linkSelector string
	linkContains string
	followLinks  bool
}

// NewEngine builds an engine over the named strategies, in the given order.
// An empty list enables every registered strategy.
func NewEngine(p *Profile, names []string, followLinks bool) (*Engine, error) {
	strategies, err := DefaultRegistry(p).Select(names)
	if err != nil {
		return nil, err
	}
	return NewEngineWith(p, strategies, followLinks), nil
}

// NewEngineWith builds an engine over explicit strategy values.
func NewEngineWith(p *Profile, strategies []Strategy, followLinks bool) *Engine {
	return &Engine{
		strategies:   strategies,
		text:         NewTextStrategy(p),
		linkSelector: p.DetailLinkSelector,
		linkContains: p.DetailLinkContains,
		followLinks:  followLinks,
	}
}

// Strategies lists the enabled strategy names in chain order.
func (e *Engine) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Extract returns the filtered pairs for a FOUND page. When the page links
// to product detail pages each one is extracted and the results are
// concatenated; the page itself is used when no detail page yields pairs.
func (e *Engine) Extract(ctx context.Context, c *catalog.Content) []Pair {
	if e.followLinks {
		if links := e.detailLinks(c); len(links) > 0 {
			var all []Pair
			for _, href := range links {
				if ctx.Err() != nil {
					break
				}
				page, err := c.Open(ctx, href)
				if err != nil {
					zap.L().Warn("extract: open detail page", zap.String("href", href), zap.Error(err))
					continue
				}
				all = append(all, e.chain(ctx, page)...)
			}
			if out := FinalFilter(all); len(out) > 0 {
				return out
			}
		}
	}
	return e.chain(ctx, c)
}

// ExtractText runs the text strategy alone, for content without a DOM.
func (e *Engine) ExtractText(text string) []Pair {
	return FinalFilter(tag(e.text.Parse(text), e.text.Name()))
}

func (e *Engine) chain(ctx context.Context, c *catalog.Content) []Pair {
	for _, s := range e.strategies {
		pairs, err := s.Extract(ctx, c)
		if err != nil {
			zap.L().Debug("extract: strategy failed, trying next",
				zap.String("strategy", s.Name()),
				zap.String("url", c.URL),
				zap.Error(err),
			)
			continue
		}
		if out := FinalFilter(tag(pairs, s.Name())); len(out) > 0 {
			zap.L().Debug("extract: strategy matched",
				zap.String("strategy", s.Name()),
				zap.Int("pairs", len(out)),
			)
			return out
		}
	}
	return nil
}

func (e *Engine) detailLinks(c *catalog.Content) []string {
	if c.Doc == nil || e.linkSelector == "" {
		return nil
	}
	var links []string
	seen := make(map[string]bool)
	c.Doc.Find(e.linkSelector).Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || seen[href] || !strings.Contains(href, e.linkContains) {
			return
		}
		seen[href] = true
		links = append(links, href)
	})
	return links
}

func tag(pairs []Pair, strategy string) []Pair {
	for i := range pairs {
		pairs[i].Strategy = strategy
	}
	return pairs
}

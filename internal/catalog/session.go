// Package catalog owns the connection to the upstream parts catalog: a
// query-capable session, its offline fixture twin, and the Manager that
// paces, retries and recreates sessions.
package catalog

import (
	"bytes"
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Session submits item codes to the catalog. A session is owned by exactly
// one Manager and is discarded, never repaired, after it fails.
type Session interface {
	// Query submits code to the search surface and returns the rendered page.
	Query(ctx context.Context, code string) (*Content, error)
	// Open loads an auxiliary page (detail page, tab target) by absolute URL.
	Open(ctx context.Context, href string) (*Content, error)
	Close() error
}

// Opener creates a fresh session.
type Opener func(ctx context.Context) (Session, error)

// Content is one rendered page: a DOM handle plus its visible text.
type Content struct {
	URL  string
	Doc  *goquery.Document
	Text string

	session Session
}

// NewContent parses body as HTML. The session is used to follow links from
// the page and may be nil for detached content.
func NewContent(session Session, pageURL string, body []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "catalog: parse html")
	}
	if u, perr := url.Parse(pageURL); perr == nil {
		doc.Url = u
	}
	return &Content{
		URL:     pageURL,
		Doc:     doc,
		Text:    VisibleText(doc.Selection),
		session: session,
	}, nil
}

// TextContent wraps plain text with no DOM, for pages saved as text.
func TextContent(text string) *Content {
	return &Content{Text: text}
}

// Open follows href relative to this page through the owning session.
func (c *Content) Open(ctx context.Context, href string) (*Content, error) {
	if c.session == nil {
		return nil, eris.New("catalog: content is detached from a session")
	}
	target, err := c.Resolve(href)
	if err != nil {
		return nil, err
	}
	return c.session.Open(ctx, target)
}

// Resolve turns href into an absolute URL relative to the page.
func (c *Content) Resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: parse href %q", href)
	}
	base, err := url.Parse(c.URL)
	if err != nil {
		return "", eris.Wrapf(err, "catalog: parse page url %q", c.URL)
	}
	return base.ResolveReference(ref).String(), nil
}

// HTML renders the page markup, used for debug dumps.
func (c *Content) HTML() (string, error) {
	if c.Doc == nil {
		return c.Text, nil
	}
	h, err := c.Doc.Html()
	if err != nil {
		return "", eris.Wrap(err, "catalog: render html")
	}
	return h, nil
}

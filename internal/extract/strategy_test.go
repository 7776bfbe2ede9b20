package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crossref-cli/internal/catalog"
)

func page(t *testing.T, html string) *catalog.Content {
	t.Helper()
	c, err := catalog.NewContent(nil, "https://catalog.test/search?part=X", []byte(html))
	require.NoError(t, err)
	return c
}

// fixturePage serves files from a temp dir so strategies can follow links.
func fixturePage(t *testing.T, files map[string]string, code string) *catalog.Content {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	s, err := catalog.NewFixtureOpener(dir)(context.Background())
	require.NoError(t, err)
	c, err := s.Query(context.Background(), code)
	require.NoError(t, err)
	return c
}

func TestTableStrategy_RowModes(t *testing.T) {
	c := page(t, `<table class="crosses">
<tr><th>Owner</th><th>Number</th></tr>
<tr><td>Acme</td><td>123</td></tr>
<tr><td>OWNER:</td><td>header repeat</td></tr>
<tr><td>Beta    456</td></tr>
<tr><th><div>Gamma</div><div>789</div></th></tr>
<tr><td></td><td>no owner</td></tr>
</table>`)

	pairs, err := NewTableStrategy(DefaultProfile()).Extract(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"Acme", "123"}, {"Beta", "456"}, {"Gamma", "789"}}, ownerNumbers(pairs))
}

func TestTableStrategy_SelectorPriorityAndVisibility(t *testing.T) {
	c := page(t, `
<table class="detail_plate-crosses" style="display: none"><tr><th>h</th></tr><tr><td>Hidden</td><td>1</td></tr></table>
<div class="detail_plate"><table><tr><th>h</th></tr><tr><td>Plate</td><td>2</td></tr></table></div>
<table class="crosses"><tr><th>h</th></tr><tr><td>Crosses</td><td>3</td></tr></table>`)

	pairs, err := NewTableStrategy(DefaultProfile()).Extract(context.Background(), c)
	require.NoError(t, err)
	// table.crosses outranks .detail_plate table; the hidden table is skipped.
	assert.Equal(t, [][2]string{{"Crosses", "3"}}, ownerNumbers(pairs))
}

func TestTableStrategy_NoTable(t *testing.T) {
	pairs, err := NewTableStrategy(DefaultProfile()).Extract(context.Background(), page(t, "<p>nothing</p>"))
	require.NoError(t, err)
	assert.Empty(t, pairs)

	pairs, err = NewTableStrategy(DefaultProfile()).Extract(context.Background(), catalog.TextContent("Crosses"))
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestTableStrategy_ActivatesTab(t *testing.T) {
	c := fixturePage(t, map[string]string{
		"JK-1.html": `<ul class="tabs"><li><a href="#specs">Specs</a></li>
<li><a class="tab-crosses" href="/detail/JK-1-crosses">Crosses</a></li></ul>`,
		"JK-1-crosses.html": `<table class="crosses"><tr><th>Owner</th></tr><tr><td>Acme</td><td>123</td></tr></table>`,
	}, "JK-1")

	pairs, err := NewTableStrategy(DefaultProfile()).Extract(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"Acme", "123"}}, ownerNumbers(pairs))
}

func TestTableStrategy_FragmentTabKeepsPage(t *testing.T) {
	c := page(t, `<a href="#crosses">Crosses</a>
<div id="crosses"><table class="crosses-table"><tr><th>h</th></tr><tr><td>Acme</td><td>123</td></tr></table></div>`)

	pairs, err := NewTableStrategy(DefaultProfile()).Extract(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"Acme", "123"}}, ownerNumbers(pairs))
}

func TestContainerStrategy(t *testing.T) {
	c := page(t, `<div class="crosses-container">
<span class="owner">Owner</span><span class="number">Number</span>
<span class="owner">Acme</span><span class="number">123</span>
<span class="owner">Beta</span><span class="number">456</span>
<span class="owner">Orphan</span>
<div class="grid-item"><p>Gamma</p><p>789</p></div>
<div class="grid-item"><p>lonely</p></div>
</div>`)

	pairs, err := NewContainerStrategy(DefaultProfile()).Extract(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"Acme", "123"}, {"Beta", "456"}, {"Gamma", "789"}}, ownerNumbers(pairs))
}

func TestContainerStrategy_NoContainer(t *testing.T) {
	pairs, err := NewContainerStrategy(DefaultProfile()).Extract(context.Background(), page(t, "<p>x</p>"))
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestFinalFilter(t *testing.T) {
	in := []Pair{
		{Owner: "Acme", Number: "123"},
		{Owner: " Acme ", Number: "123 "},
		{Owner: "", Number: "999"},
		{Owner: "A", Number: "1"},
		{Owner: "Owner Name", Number: "55"},
		{Owner: "Beta", Number: "456"},
		{Owner: "Acme", Number: "124"},
	}
	got := FinalFilter(in)
	assert.Equal(t, [][2]string{{"Acme", "123"}, {"Beta", "456"}, {"Acme", "124"}}, ownerNumbers(got))
}

func TestFinalFilter_CountsCharacters(t *testing.T) {
	in := []Pair{
		{Owner: "Ö", Number: "1"},
		{Owner: "Öl", Number: "9"},
	}
	assert.Equal(t, [][2]string{{"Öl", "9"}}, ownerNumbers(FinalFilter(in)))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(DefaultProfile())
	assert.Equal(t, []string{"table", "container", "text"}, r.Names())

	sel, err := r.Select([]string{"text", "table", "text"})
	require.NoError(t, err)
	require.Len(t, sel, 2)
	assert.Equal(t, "text", sel[0].Name())
	assert.Equal(t, "table", sel[1].Name())

	_, err = r.Select([]string{"xpath"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
	assert.Contains(t, err.Error(), "known: table, container, text")

	r.Register(fakeStrategy{name: "table"})
	assert.Equal(t, []string{"table", "container", "text"}, r.Names())
	s, err := r.Get("table")
	require.NoError(t, err)
	assert.IsType(t, fakeStrategy{}, s)
}

type fakeStrategy struct {
	name  string
	pairs []Pair
	err   error
	calls *int
}

func (f fakeStrategy) Name() string { return f.name }

func (f fakeStrategy) Extract(context.Context, *catalog.Content) ([]Pair, error) {
	if f.calls != nil {
		*f.calls++
	}
	return append([]Pair(nil), f.pairs...), f.err
}

func TestEngine_FirstNonEmptyStrategyWins(t *testing.T) {
	var thirdCalls int
	e := NewEngineWith(DefaultProfile(), []Strategy{
		fakeStrategy{name: "broken", err: errors.New("boom")},
		fakeStrategy{name: "junk", pairs: []Pair{{Owner: "Owner", Number: "Number"}}},
		fakeStrategy{name: "good", pairs: []Pair{{Owner: "Acme", Number: "123"}, {Owner: "Acme", Number: "123"}}},
		fakeStrategy{name: "never", pairs: []Pair{{Owner: "Zed", Number: "9"}}, calls: &thirdCalls},
	}, false)

	got := e.Extract(context.Background(), page(t, "<p>x</p>"))
	assert.Equal(t, []Pair{{Owner: "Acme", Number: "123", Strategy: "good"}}, got)
	assert.Zero(t, thirdCalls)
	assert.Equal(t, []string{"broken", "junk", "good", "never"}, e.Strategies())
}

func TestEngine_FullChainOnPlainText(t *testing.T) {
	e, err := NewEngine(DefaultProfile(), nil, true)
	require.NoError(t, err)

	got := e.Extract(context.Background(), catalog.TextContent("Crosses\nOwner\nNumber\nAcme\n123\nApplication"))
	assert.Equal(t, []Pair{{Owner: "Acme", Number: "123", Strategy: "text"}}, got)
	assert.Empty(t, e.Extract(context.Background(), catalog.TextContent("Search Result for X")))
}

func TestEngine_FollowsDetailLinks(t *testing.T) {
	files := map[string]string{
		"X.html": `<h2>Search Result for X</h2><table class="results">
<tr><td><a href="/product/P1">P1</a></td></tr>
<tr><td><a href="/product/P2">P2</a></td></tr>
<tr><td><a href="/product/P1">again</a></td></tr>
<tr><td><a href="/product/MISSING">gone</a></td></tr>
<tr><td><a href="/news/1">news</a></td></tr></table>`,
		"P1.html": `<table class="crosses"><tr><th>Owner</th><th>Number</th></tr><tr><td>Acme</td><td>123</td></tr></table>`,
		"P2.html": `<div>Crosses</div><div>Owner</div><div>Beta</div><div>456</div><div>Acme</div><div>123</div>`,
	}
	c := fixturePage(t, files, "X")

	e, err := NewEngine(DefaultProfile(), nil, true)
	require.NoError(t, err)
	got := e.Extract(context.Background(), c)
	assert.Equal(t, []Pair{
		{Owner: "Acme", Number: "123", Strategy: "table"},
		{Owner: "Beta", Number: "456", Strategy: "text"},
	}, got)

	noFollow, err := NewEngine(DefaultProfile(), []string{"table", "text"}, false)
	require.NoError(t, err)
	assert.Empty(t, noFollow.Extract(context.Background(), c))
}

func TestEngine_ExtractText(t *testing.T) {
	e, err := NewEngine(DefaultProfile(), []string{"table"}, false)
	require.NoError(t, err)
	got := e.ExtractText("Crosses\nOwner\nNumber\nAcme\n123\nBrandX\n456\nApplication\n...")
	assert.Equal(t, []Pair{
		{Owner: "Acme", Number: "123", Strategy: "text"},
		{Owner: "BrandX", Number: "456", Strategy: "text"},
	}, got)
}

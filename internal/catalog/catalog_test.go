package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/resilience"
)

const resultPage = `<html><head><title>t</title><script>var x = "Crosses";</script></head>
<body><h1>Search Result for JK-100</h1>
<div class="detail_plate-crosses"><table class="crosses">
<tr><th>Owner</th><th>Number</th></tr>
<tr><td>Acme</td><td>123</td></tr>
</table></div>
<p>Ball   <b>Joint</b>
front</p>
<a href="/product/JK-100">detail</a>
</body></html>`

func TestVisibleText(t *testing.T) {
	c, err := NewContent(nil, "https://catalog.test/search", []byte(resultPage))
	require.NoError(t, err)

	assert.Equal(t,
		"Search Result for JK-100\nOwner\nNumber\nAcme\n123\nBall Joint front\ndetail",
		c.Text)
	assert.NotContains(t, c.Text, "var x")
}

func TestContentResolveAndDetached(t *testing.T) {
	c, err := NewContent(nil, "https://catalog.test/catalogue/search?part=A", []byte(resultPage))
	require.NoError(t, err)

	got, err := c.Resolve("/product/JK-100")
	require.NoError(t, err)
	assert.Equal(t, "https://catalog.test/product/JK-100", got)

	_, err = c.Open(context.Background(), "/product/JK-100")
	require.Error(t, err)

	tc := TextContent("Crosses\nOwner")
	assert.Nil(t, tc.Doc)
	h, err := tc.HTML()
	require.NoError(t, err)
	assert.Equal(t, "Crosses\nOwner", h)
}

func TestDetectBlock(t *testing.T) {
	h := http.Header{}
	h.Set("cf-ray", "abc")
	blocked, kind := DetectBlock(403, h, nil)
	assert.True(t, blocked)
	assert.Equal(t, BlockCloudflare, kind)

	blocked, kind = DetectBlock(200, http.Header{}, []byte(`<div class="g-recaptcha"></div>`))
	assert.True(t, blocked)
	assert.Equal(t, BlockCaptcha, kind)

	blocked, _ = DetectBlock(200, http.Header{}, []byte(resultPage))
	assert.False(t, blocked)
}

func newCatalogServer(t *testing.T, mux *http.ServeMux) HTTPOptions {
	t.Helper()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1"})
		_, _ = w.Write([]byte("<html><body>home</body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return HTTPOptions{
		BaseURL:    srv.URL,
		SearchPath: "/catalogue/search",
		QueryParam: "part",
		UserAgent:  "crossref-test",
		Timeout:    2 * time.Second,
	}
}

func TestHTTPSession_QueryAndOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/catalogue/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JK-100", r.URL.Query().Get("part"))
		assert.Equal(t, "crossref-test", r.Header.Get("User-Agent"))
		if _, err := r.Cookie("sid"); err != nil {
			t.Error("expected session cookie from warm-up")
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(resultPage))
	})
	mux.HandleFunc("/product/JK-100", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Crosses</p></body></html>"))
	})
	opts := newCatalogServer(t, mux)

	s, err := OpenHTTP(context.Background(), opts)
	require.NoError(t, err)

	c, err := s.Query(context.Background(), "JK-100")
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Search Result for JK-100")
	assert.Equal(t, 1, c.Doc.Find("table.crosses").Length())

	detail, err := c.Open(context.Background(), "/product/JK-100")
	require.NoError(t, err)
	assert.Equal(t, "Crosses", detail.Text)

	require.NoError(t, s.Close())
	_, err = s.Query(context.Background(), "JK-100")
	assert.True(t, resilience.IsSessionFatal(err))
}

func TestHTTPSession_ErrorTaxonomy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/catalogue/search", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("part") {
		case "busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "blocked":
			_, _ = w.Write([]byte("<html>Checking your browser before accessing</html>"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	opts := newCatalogServer(t, mux)
	s, err := OpenHTTP(context.Background(), opts)
	require.NoError(t, err)

	_, err = s.Query(context.Background(), "busy")
	assert.True(t, resilience.IsTransient(err), "503 should be transient: %v", err)

	_, err = s.Query(context.Background(), "blocked")
	assert.True(t, resilience.IsSessionFatal(err), "challenge page should be session-fatal: %v", err)

	_, err = s.Query(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, resilience.IsRetryable(err))
}

func TestHTTPSession_DecodesCharset(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/catalogue/search", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write([]byte("<html><body><p>Citro\xebn</p></body></html>"))
	})
	opts := newCatalogServer(t, mux)
	s, err := OpenHTTP(context.Background(), opts)
	require.NoError(t, err)

	c, err := s.Query(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "Citroën", c.Text)
}

func TestOpenHTTP_InvalidBase(t *testing.T) {
	_, err := OpenHTTP(context.Background(), HTTPOptions{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestFixtureSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "JK-100.html"), []byte(resultPage), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "JK-100-detail.html"), []byte("<p>detail page</p>"), 0o600))

	s, err := NewFixtureOpener(dir)(context.Background())
	require.NoError(t, err)

	c, err := s.Query(context.Background(), " JK-100 ")
	require.NoError(t, err)
	assert.Contains(t, c.Text, "Acme")

	d, err := c.Open(context.Background(), "/product/JK-100-detail")
	require.NoError(t, err)
	assert.Equal(t, "detail page", d.Text)

	_, err = s.Query(context.Background(), "missing")
	require.Error(t, err)

	_, err = NewFixtureOpener(filepath.Join(dir, "nope"))(context.Background())
	require.Error(t, err)
}

// scriptedSession fails its first failures queries with err.
type scriptedSession struct {
	id       int
	failures int
	err      error
	queries  *int
	closed   bool
}

func (s *scriptedSession) Query(_ context.Context, code string) (*Content, error) {
	*s.queries++
	if s.closed {
		return nil, resilience.NewSessionFatalError(errors.New("closed"))
	}
	if s.failures > 0 {
		s.failures--
		return nil, s.err
	}
	return TextContent("Search Result for " + code), nil
}

func (s *scriptedSession) Open(context.Context, string) (*Content, error) {
	return nil, errors.New("not supported")
}

func (s *scriptedSession) Close() error {
	s.closed = true
	return nil
}

type sessionFactory struct {
	opened   []*scriptedSession
	failures func(n int) int
	err      error
	queries  int
}

func (f *sessionFactory) open(context.Context) (Session, error) {
	s := &scriptedSession{id: len(f.opened) + 1, err: f.err, queries: &f.queries}
	if f.failures != nil {
		s.failures = f.failures(s.id)
	}
	f.opened = append(f.opened, s)
	return s, nil
}

func testManagerOptions() ManagerOptions {
	return ManagerOptions{
		Retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 100, ResetTimeout: time.Millisecond},
	}
}

func TestManager_RecreatesSessionBetweenAttempts(t *testing.T) {
	f := &sessionFactory{
		err:      resilience.NewTransientError(errors.New("timeout"), 0),
		failures: func(n int) int { return map[int]int{1: 1}[n] },
	}
	m := NewManager(f.open, testManagerOptions())

	c, out, err := m.Query(context.Background(), model.NewItemQuery("A1"))
	require.NoError(t, err)
	assert.Equal(t, "Search Result for A1", c.Text)
	assert.Equal(t, 2, out.Attempts)
	require.Len(t, f.opened, 2)
	assert.True(t, f.opened[0].closed, "failed session must be closed")
	assert.False(t, f.opened[1].closed)
	assert.Equal(t, 1, m.Recreations())
}

func TestManager_ExhaustedAttemptsReturnError(t *testing.T) {
	f := &sessionFactory{
		err: errors.New("element not found"),
		failures: func(n int) int {
			if n <= 2 {
				return 1
			}
			return 0
		},
	}
	m := NewManager(f.open, testManagerOptions())

	_, out, err := m.Query(context.Background(), model.NewItemQuery("B2"))
	require.Error(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, f.queries)

	// The next item starts on a fresh session and succeeds.
	_, _, err = m.Query(context.Background(), model.NewItemQuery("C3"))
	require.NoError(t, err)
	assert.Len(t, f.opened, 3)
}

func TestManager_ScheduledRecreation(t *testing.T) {
	f := &sessionFactory{}
	opts := testManagerOptions()
	opts.RecreateEvery = 2
	m := NewManager(f.open, opts)

	for _, code := range []string{"A", "B", "C", "D", "E"} {
		_, _, err := m.Query(context.Background(), model.NewItemQuery(code))
		require.NoError(t, err)
		m.Done()
	}
	// Sessions: A,B on #1; C,D on #2; E on #3.
	assert.Len(t, f.opened, 3)
	assert.Equal(t, 2, m.Recreations())

	require.NoError(t, m.Close())
	assert.True(t, f.opened[2].closed)
	require.NoError(t, m.Close())
}

func TestManager_OpenFailureIsRetried(t *testing.T) {
	calls := 0
	open := func(context.Context) (Session, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("browser failed to start")
		}
		return &scriptedSession{queries: new(int)}, nil
	}
	m := NewManager(open, testManagerOptions())

	_, out, err := m.Query(context.Background(), model.NewItemQuery("A"))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 2, calls)
}

func TestManager_PacesQueries(t *testing.T) {
	f := &sessionFactory{}
	opts := testManagerOptions()
	opts.Delay = 30 * time.Millisecond
	m := NewManager(f.open, opts)

	start := time.Now()
	for _, code := range []string{"A", "B", "C"} {
		_, _, err := m.Query(context.Background(), model.NewItemQuery(code))
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestManager_CancelledWhileWaiting(t *testing.T) {
	f := &sessionFactory{}
	opts := testManagerOptions()
	opts.Delay = time.Hour
	m := NewManager(f.open, opts)

	_, _, err := m.Query(context.Background(), model.NewItemQuery("A"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err = m.Query(ctx, model.NewItemQuery("B"))
	require.Error(t, err)
}

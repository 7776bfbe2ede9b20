package catalog

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/crossref-cli/internal/resilience"
)

// HTTPOptions configures an HTTPSession.
type HTTPOptions struct {
	BaseURL          string
	SearchPath       string
	QueryParam       string
	UserAgent        string
	Timeout          time.Duration
	CloudflareBypass bool
}

// HTTPSession queries the catalog over HTTP with its own cookie jar.
type HTTPSession struct {
	client *resty.Client
	opts   HTTPOptions
	closed bool
}

// NewHTTPOpener returns an Opener producing HTTP sessions.
func NewHTTPOpener(opts HTTPOptions) Opener {
	return func(ctx context.Context) (Session, error) {
		return OpenHTTP(ctx, opts)
	}
}

// OpenHTTP creates a session with a fresh cookie jar and warms it up with a
// request to the base URL so the catalog can set its cookies.
func OpenHTTP(ctx context.Context, opts HTTPOptions) (*HTTPSession, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, eris.Errorf("catalog: invalid base url %q", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.QueryParam == "" {
		opts.QueryParam = "q"
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: cookie jar")
	}
	client.SetCookieJar(jar)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(opts.Timeout)

	s := &HTTPSession{client: client, opts: opts}

	resp, err := client.R().SetContext(ctx).Get("/")
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "catalog: warm up session"), 0)
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode()) {
		return nil, resilience.NewTransientError(eris.Errorf("catalog: warm up status %d", resp.StatusCode()), resp.StatusCode())
	}

	zap.L().Debug("catalog: session opened", zap.String("base_url", opts.BaseURL))
	return s, nil
}

// Query submits code to the configured search path.
func (s *HTTPSession) Query(ctx context.Context, code string) (*Content, error) {
	if s.closed {
		return nil, resilience.NewSessionFatalError(eris.New("catalog: session closed"))
	}
	req := s.client.R().SetContext(ctx).SetQueryParam(s.opts.QueryParam, code)
	return s.fetch(ctx, req, s.opts.SearchPath)
}

// Open fetches an auxiliary page with the session's cookies.
func (s *HTTPSession) Open(ctx context.Context, href string) (*Content, error) {
	if s.closed {
		return nil, resilience.NewSessionFatalError(eris.New("catalog: session closed"))
	}
	return s.fetch(ctx, s.client.R().SetContext(ctx), href)
}

// Close marks the session unusable and drops idle connections.
func (s *HTTPSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.GetClient().CloseIdleConnections()
	return nil
}

func (s *HTTPSession) fetch(ctx context.Context, req *resty.Request, target string) (*Content, error) {
	resp, err := req.Get(target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "catalog: request cancelled")
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "catalog: get %s", target), 0)
	}

	status := resp.StatusCode()
	body := resp.Body()

	if blocked, kind := DetectBlock(status, resp.Header(), body); blocked {
		return nil, resilience.NewSessionFatalError(eris.Errorf("catalog: blocked (%s)", kind))
	}
	if resilience.IsTransientHTTPStatus(status) {
		return nil, resilience.NewTransientError(eris.Errorf("catalog: status %d for %s", status, target), status)
	}
	if status >= 400 {
		return nil, eris.Errorf("catalog: status %d for %s", status, target)
	}

	decoded, err := decodeBody(resp.Header().Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}

	pageURL := target
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		pageURL = resp.RawResponse.Request.URL.String()
	}
	return NewContent(s, pageURL, decoded)
}

// decodeBody converts a non-UTF-8 body using the charset from the
// Content-Type header.
func decodeBody(contentType string, body []byte) ([]byte, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return body, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		zap.L().Debug("catalog: unknown charset, using raw body", zap.String("charset", charset))
		return body, nil
	}
	out, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: decode %s body", charset)
	}
	return out, nil
}

var _ Session = (*HTTPSession)(nil)

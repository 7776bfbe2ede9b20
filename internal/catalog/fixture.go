package catalog

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crossref-cli/internal/resilience"
)

// FixtureSession serves saved catalog pages from a directory: a query for
// code reads <code>.html, and links resolve to the file named after the
// last path segment.
type FixtureSession struct {
	dir    string
	closed bool
}

// NewFixtureOpener returns an Opener that serves pages from dir.
func NewFixtureOpener(dir string) Opener {
	return func(_ context.Context) (Session, error) {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: fixture dir %s", dir)
		}
		if !info.IsDir() {
			return nil, eris.Errorf("catalog: fixture path %s is not a directory", dir)
		}
		return &FixtureSession{dir: dir}, nil
	}
}

// Query loads the saved page for code.
func (f *FixtureSession) Query(_ context.Context, code string) (*Content, error) {
	if f.closed {
		return nil, resilience.NewSessionFatalError(eris.New("catalog: session closed"))
	}
	return f.load(fixtureName(code))
}

// Open loads the saved page for the last segment of href.
func (f *FixtureSession) Open(_ context.Context, href string) (*Content, error) {
	if f.closed {
		return nil, resilience.NewSessionFatalError(eris.New("catalog: session closed"))
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse href %q", href)
	}
	return f.load(fixtureName(path.Base(u.Path)))
}

// Close marks the session unusable.
func (f *FixtureSession) Close() error {
	f.closed = true
	return nil
}

func (f *FixtureSession) load(name string) (*Content, error) {
	p := filepath.Join(f.dir, name)
	body, err := os.ReadFile(p) // #nosec G304 -- confined to the fixture dir
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Errorf("catalog: no fixture %s", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read fixture %s", name)
	}
	return NewContent(f, "fixture:///"+url.PathEscape(name), body)
}

func fixtureName(code string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(strings.TrimSpace(code))
	if filepath.Ext(name) != ".html" {
		name += ".html"
	}
	return name
}

var _ Session = (*FixtureSession)(nil)

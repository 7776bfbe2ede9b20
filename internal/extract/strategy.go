package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crossref-cli/internal/catalog"
)

// Pair is one owner/number cross reference recovered from a page.
type Pair struct {
	Owner    string
	Number   string
	Strategy string
}

// String renders the pair as owner=number.
func (p Pair) String() string {
	return p.Owner + "=" + p.Number
}

// Strategy recovers pairs from one page. Strategies return raw pairs; the
// engine applies the final filter.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, c *catalog.Content) ([]Pair, error)
}

// Registry maps strategy names to implementations in registration order.
type Registry struct {
	strategies map[string]Strategy
	order      []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// DefaultRegistry registers the built-in strategies in priority order.
func DefaultRegistry(p *Profile) *Registry {
	r := NewRegistry()
	r.Register(NewTableStrategy(p))
	r.Register(NewContainerStrategy(p))
	r.Register(NewTextStrategy(p))
	return r
}

// Register adds s, replacing any strategy with the same name in place.
func (r *Registry) Register(s Strategy) {
	name := s.Name()
	if _, ok := r.strategies[name]; !ok {
		r.order = append(r.order, name)
	}
	r.strategies[name] = s
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, eris.Errorf("extract: unknown strategy %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

// Select returns the named strategies in the order given, or all of them in
// registration order when names is empty.
func (r *Registry) Select(names []string) ([]Strategy, error) {
	if len(names) == 0 {
		names = r.order
	}
	out := make([]Strategy, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		s, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Names lists registered strategies in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/crossref-cli/internal/catalog"
)

// ContainerStrategy reads label/value layouts inside a crosses container.
type ContainerStrategy struct {
	containers []string
	owners     string
	numbers    string
	grid       string
	ownerWords []string
}

// NewContainerStrategy builds the container scanner from the profile.
func NewContainerStrategy(p *Profile) *ContainerStrategy {
	return &ContainerStrategy{
		containers: p.ContainerSelectors,
		owners:     strings.Join(p.OwnerSelectors, ", "),
		numbers:    strings.Join(p.NumberSelectors, ", "),
		grid:       strings.Join(p.GridSelectors, ", "),
		ownerWords: foldAll(p.OwnerHeaders),
	}
}

func (s *ContainerStrategy) Name() string { return "container" }

// Extract pairs owner-class and number-class elements by position, then adds
// grid items whose first two lines are owner and number.
func (s *ContainerStrategy) Extract(_ context.Context, c *catalog.Content) ([]Pair, error) {
	if c.Doc == nil {
		return nil, nil
	}

	for _, sel := range s.containers {
		box := firstVisible(c.Doc.Selection, sel)
		if box == nil {
			continue
		}
		var out []Pair
		out = append(out, s.positional(box)...)
		out = append(out, s.gridItems(box)...)
		return out, nil
	}
	return nil, nil
}

func (s *ContainerStrategy) positional(box *goquery.Selection) []Pair {
	if s.owners == "" || s.numbers == "" {
		return nil
	}
	owners := box.Find(s.owners)
	numbers := box.Find(s.numbers)
	n := min(owners.Length(), numbers.Length())

	out := make([]Pair, 0, n)
	for i := range n {
		owner, number := oneLine(owners.Eq(i)), oneLine(numbers.Eq(i))
		if owner == "" || number == "" || s.isHeader(owner) {
			continue
		}
		out = append(out, Pair{Owner: owner, Number: number})
	}
	return out
}

func (s *ContainerStrategy) gridItems(box *goquery.Selection) []Pair {
	if s.grid == "" {
		return nil
	}
	var out []Pair
	box.Find(s.grid).Each(func(_ int, item *goquery.Selection) {
		ls := blockLines(item)
		if len(ls) < 2 || s.isHeader(ls[0]) {
			return
		}
		out = append(out, Pair{Owner: ls[0], Number: ls[1]})
	})
	return out
}

func (s *ContainerStrategy) isHeader(v string) bool {
	return hasPrefixAny(fold(v), s.ownerWords)
}

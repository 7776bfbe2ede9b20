// Package extract classifies catalog responses and recovers cross-reference
// pairs from them with an ordered chain of strategies.
package extract

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ItemType maps catalog keywords to a part-type label.
type ItemType struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Profile holds every marker, keyword and selector the classifier and the
// strategies rely on. Catalog markup changes are handled by editing a
// profile file rather than code.
type Profile struct {
	NoDataMarkers      []string   `yaml:"no_data_markers"`
	ZeroResultMarkers  []string   `yaml:"zero_result_markers"`
	FoundMarkers       []string   `yaml:"found_markers"`
	ItemTypes          []ItemType `yaml:"item_types"`
	MatchedCodePattern string     `yaml:"matched_code_pattern"`

	SectionKeyword string   `yaml:"section_keyword"`
	OwnerHeaders   []string `yaml:"owner_headers"`
	NumberHeaders  []string `yaml:"number_headers"`
	StopKeywords   []string `yaml:"stop_keywords"`

	TabKeyword         string   `yaml:"tab_keyword"`
	TableSelectors     []string `yaml:"table_selectors"`
	ContainerSelectors []string `yaml:"container_selectors"`
	OwnerSelectors     []string `yaml:"owner_selectors"`
	NumberSelectors    []string `yaml:"number_selectors"`
	GridSelectors      []string `yaml:"grid_selectors"`

	DetailLinkSelector string `yaml:"detail_link_selector"`
	DetailLinkContains string `yaml:"detail_link_contains"`
}

// DefaultProfile returns the profile for the JIKIU catalog.
func DefaultProfile() *Profile {
	return &Profile{
		NoDataMarkers:     []string{"No data found!"},
		ZeroResultMarkers: []string{"0 result"},
		FoundMarkers:      []string{"Search Result for"},
		ItemTypes: []ItemType{
			{Label: "BALL JOINT", Keywords: []string{"BALL JOINT"}},
			{Label: "TIE ROD END", Keywords: []string{"TIE ROD END"}},
			{Label: "STABILIZER LINK", Keywords: []string{"STABILIZER LINK"}},
			{Label: "LOWER ARM BUSHING", Keywords: []string{"LOWER ARM", "BUSHING"}},
			{Label: "RACK END", Keywords: []string{"RACK END"}},
			{Label: "IDLER ARM", Keywords: []string{"IDLER ARM"}},
		},
		MatchedCodePattern: `Returns JIKIU - (\w+)`,

		SectionKeyword: "Crosses",
		OwnerHeaders:   []string{"owner", "pemilik"},
		NumberHeaders:  []string{"number", "nomor"},
		StopKeywords: []string{
			"application", "applications", "applicability",
			"brand", "vehicle", "vehicles", "car maker",
			"specification", "specifications", "description",
			"related products",
		},

		TabKeyword: "crosses",
		TableSelectors: []string{
			"table.detail_plate-crosses",
			"table.crosses",
			".detail_plate-crosses table",
			".crosses-table",
			".detail_table-crosses",
			".detail_plate table",
			`table[data-type="crosses"]`,
			".detail_plate.detail_plate-crosses table",
			".crosses table",
			"table.crosses-table",
		},
		ContainerSelectors: []string{
			".detail_plate-crosses",
			".crosses-container",
			".crosses_list",
			`[id*="cross"]`,
			`[class*="cross"]`,
			".detail-plate-crosses",
			".crosses-list",
			".crosses-content",
		},
		OwnerSelectors:  []string{".detail_field", ".owner", `[class*="owner"]`, ".crosses-owner", ".w200"},
		NumberSelectors: []string{".detail_value", ".number", `[class*="number"]`, ".crosses-number"},
		GridSelectors:   []string{".row", ".grid-item", ".crosses-item"},

		DetailLinkSelector: "table a",
		DetailLinkContains: "/product/",
	}
}

// LoadProfile reads a YAML profile. Keys missing from the file keep their
// default values; list keys present in the file replace the default list.
func LoadProfile(path string) (*Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied profile path
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read profile %s", path)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, eris.Wrapf(err, "extract: parse profile %s", path)
	}
	if err := p.Validate(); err != nil {
		return nil, eris.Wrapf(err, "extract: profile %s", path)
	}
	return p, nil
}

// Validate rejects profiles the strategies cannot run with.
func (p *Profile) Validate() error {
	if p.SectionKeyword == "" {
		return eris.New("section_keyword is required")
	}
	if len(p.OwnerHeaders) == 0 || len(p.NumberHeaders) == 0 {
		return eris.New("owner_headers and number_headers are required")
	}
	if _, err := compileMatched(p.MatchedCodePattern); err != nil {
		return err
	}
	return nil
}

package tabular

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/model"
)

// Master is the operator's list of item codes plus its descriptive columns.
type Master struct {
	Table   *Table
	CodeCol int
	// Items holds one query per distinct normalized code, in file order.
	Items []model.ItemQuery
}

// LoadMaster reads the master list at path and resolves its item-code column.
func LoadMaster(ctx context.Context, path, sheet string) (*Master, error) {
	t, err := Read(ctx, path, ReadOptions{Sheet: sheet})
	if err != nil {
		return nil, err
	}
	return NewMaster(t, path)
}

// NewMaster builds a Master from an already loaded table. Rows without a
// code are dropped.
func NewMaster(t *Table, source string) (*Master, error) {
	schema := Resolve(t.Header, DefaultRules)
	col, ok := schema.Index(FieldItemCode)
	if !ok {
		return nil, eris.Errorf("tabular: %s has no item code column (header %v)", source, t.Header)
	}

	m := &Master{Table: &Table{Header: t.Header}, CodeCol: col}
	seen := make(map[string]bool, len(t.Rows))
	dups := 0
	for _, row := range t.Rows {
		q := model.NewItemQuery(row[col])
		if q.CleanedCode == "" {
			continue
		}
		m.Table.Rows = append(m.Table.Rows, row)
		if seen[q.Key()] {
			dups++
			continue
		}
		seen[q.Key()] = true
		m.Items = append(m.Items, q)
	}

	if dups > 0 {
		zap.L().Warn("master list has duplicate item codes",
			zap.String("source", source),
			zap.Int("duplicates", dups),
		)
	}
	return m, nil
}

// Filter returns the master rows whose normalized code is in keep, in
// master order.
func (m *Master) Filter(keep map[string]bool) *Table {
	out := &Table{Header: m.Table.Header}
	for _, row := range m.Table.Rows {
		if keep[model.NormalizeCode(row[m.CodeCol])] {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Lookup indexes the first master row per normalized code.
func (m *Master) Lookup() map[string][]string {
	idx := make(map[string][]string, len(m.Table.Rows))
	for _, row := range m.Table.Rows {
		k := model.NormalizeCode(row[m.CodeCol])
		if _, ok := idx[k]; !ok {
			idx[k] = row
		}
	}
	return idx
}

// ExtraColumns returns the header names other than the item-code column.
func (m *Master) ExtraColumns() []string {
	var out []string
	for i, h := range m.Table.Header {
		if i != m.CodeCol {
			out = append(out, h)
		}
	}
	return out
}

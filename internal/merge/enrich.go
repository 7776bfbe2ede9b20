package merge

import (
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

// ValidationSuffix is appended to validation columns whose names are
// already present in the merged dataset.
const ValidationSuffix = "_validation"

// DefaultValidationColumns are joined when none are requested.
var DefaultValidationColumns = []string{"status", "details"}

// Enrich left-joins validation columns onto t by normalized item code.
// Rows without a match keep empty values. When the validation data holds
// several rows for one code the first wins. It returns the number of rows
// that matched.
func Enrich(t, validation *tabular.Table, columns []string) (*tabular.Table, int, error) {
	if len(columns) == 0 {
		columns = DefaultValidationColumns
	}
	vs := tabular.Resolve(validation.Header, tabular.DefaultRules)
	codeCol, ok := vs.Index(tabular.FieldItemCode)
	if !ok {
		return nil, 0, &SchemaError{Path: "validation", Header: validation.Header}
	}

	type source struct {
		name string // normalized validation header
		idx  int
	}
	var sources []source
	for _, c := range columns {
		idx, ok := exactOrContains(vs, c)
		if !ok {
			zap.L().Warn("merge: validation column not found", zap.String("column", c))
			continue
		}
		sources = append(sources, source{name: vs.Header[idx], idx: idx})
	}

	records := make(map[string]model.ValidationRecord)
	for _, row := range validation.Rows {
		code := model.NormalizeCode(cell(row, codeCol))
		if code == "" {
			continue
		}
		if _, dup := records[code]; dup {
			continue
		}
		rec := model.ValidationRecord{ItemCode: code, Extra: make(map[string]string)}
		for _, s := range sources {
			v := cell(row, s.idx)
			switch s.name {
			case "status":
				rec.Status = v
			case "details":
				rec.Details = v
			default:
				rec.Extra[s.name] = v
			}
		}
		records[code] = rec
	}

	existing := make(map[string]bool, len(t.Header))
	for _, h := range t.Header {
		existing[h] = true
	}
	header := append([]string(nil), t.Header...)
	for _, s := range sources {
		name := s.name
		if existing[name] {
			name += ValidationSuffix
		}
		existing[name] = true
		header = append(header, name)
	}

	out := &tabular.Table{Header: header, Rows: make([][]string, len(t.Rows))}
	matched := 0
	for i, row := range t.Rows {
		r := make([]string, len(header))
		copy(r, row)
		if rec, ok := records[model.NormalizeCode(row[0])]; ok {
			matched++
			for j, s := range sources {
				r[len(t.Header)+j] = rec.Value(s.name)
			}
		}
		out.Rows[i] = r
	}
	return out, matched, nil
}

func exactOrContains(s tabular.Schema, name string) (int, bool) {
	want := tabular.NormalizeHeader(name)
	for i, h := range s.Header {
		if h == want {
			return i, true
		}
	}
	return s.Find(want)
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

package checkpoint

import (
	"strconv"

	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

// Sheet names inside a shard workbook.
const (
	ResultsSheet = "results"
	CrossesSheet = "crosses"
)

// ResultsHeader is the query-result table header.
var ResultsHeader = []string{"No", "Item Code", "Cleaned Code", "Status", "Matched Code", "Details", "Crosses", "Timestamp"}

// CrossesHeader is the cross-reference table header.
var CrossesHeader = []string{"Item Code", "Owner", "Number", "Strategy"}

// ResultsTable renders query results one row per item.
func ResultsTable(results []model.QueryResult) *tabular.Table {
	t := &tabular.Table{Header: ResultsHeader}
	for _, r := range results {
		ts := ""
		if !r.Timestamp.IsZero() {
			ts = r.Timestamp.Format(model.TimestampLayout)
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.No),
			r.ItemCode,
			r.CleanedCode,
			string(r.Status),
			r.MatchedCode,
			r.Details,
			r.CrossesString(),
			ts,
		})
	}
	return t
}

// CrossesTable renders one row per cross reference, in result order.
func CrossesTable(results []model.QueryResult) *tabular.Table {
	t := &tabular.Table{Header: CrossesHeader}
	for _, r := range results {
		for _, c := range r.Crosses {
			t.Rows = append(t.Rows, []string{c.ItemCode, c.Owner, c.Number, c.Strategy})
		}
	}
	return t
}

// JoinInput appends the master list's descriptive columns to a crosses
// table, matching rows on normalized item code. Codes absent from the
// master get blanks.
func JoinInput(t *tabular.Table, master *tabular.Master) *tabular.Table {
	extra := master.ExtraColumns()
	lookup := master.Lookup()
	out := &tabular.Table{Header: append(append([]string(nil), t.Header...), extra...)}
	for _, row := range t.Rows {
		joined := make([]string, 0, len(out.Header))
		joined = append(joined, row...)
		src, ok := lookup[model.NormalizeCode(row[0])]
		for i := range master.Table.Header {
			if i == master.CodeCol {
				continue
			}
			v := ""
			if ok && i < len(src) {
				v = src[i]
			}
			joined = append(joined, v)
		}
		out.Rows = append(out.Rows, joined)
	}
	return out
}

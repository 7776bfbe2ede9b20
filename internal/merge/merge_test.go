package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crossref-cli/internal/tabular"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMerge_HeterogeneousHeaders(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "ItemCode,Owner,Number\nX1,Acme,100\n")
	b := writeCSV(t, dir, "b.csv", "item code,OWNER,NUMBER,Car Maker\nX2,Beta,200,Toyota\n")

	out, report, err := New(Options{}).Merge(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"item code", "owner", "number", "car maker"}, out.Header)
	assert.Equal(t, [][]string{
		{"X1", "Acme", "100", ""},
		{"X2", "Beta", "200", "Toyota"},
	}, out.Rows)
	assert.Equal(t, 2, report.FilesRead)
	assert.Equal(t, 2, report.RowsOut)
}

func TestMerge_DedupKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "Item Code,Owner,Number,Source\nX1,Acme,100,first\nX1.,Acme,100,second\n")
	b := writeCSV(t, dir, "b.csv", "Item Code,Owner,Number,Source\n X1 ,Acme,100,third\nX1,Acme,101,fourth\n")

	out, report, err := New(Options{}).Merge(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"X1", "Acme", "100", "first"},
		{"X1", "Acme", "101", "fourth"},
	}, out.Rows)
	assert.Equal(t, 2, report.DuplicatesDropped)

	// Merging the output again changes nothing.
	path := filepath.Join(dir, "merged.csv")
	require.NoError(t, tabular.Write(path, out))
	again, _, err := New(Options{}).Merge(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, out.Rows, again.Rows)
}

func TestMerge_DropsEmptyRows(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "Item Code,Owner,Number\n,,\nX1,Acme,100\n")

	out, report, err := New(Options{}).Merge(context.Background(), []string{a})
	require.NoError(t, err)
	assert.Len(t, out.Rows, 1)
	assert.Equal(t, 1, report.EmptyDropped)
}

func TestMerge_SkipsFileWithoutItemCode(t *testing.T) {
	dir := t.TempDir()
	good := writeCSV(t, dir, "good.csv", "Item Code,Owner,Number\nX1,Acme,100\n")
	bad := writeCSV(t, dir, "bad.csv", "Part,Owner,Number\nX2,Beta,200\n")

	out, report, err := New(Options{}).Merge(context.Background(), []string{bad, good})
	require.NoError(t, err)
	assert.Len(t, out.Rows, 1)
	require.Len(t, report.FilesSkipped, 1)
	assert.Equal(t, bad, report.FilesSkipped[0].Path)

	var serr *SchemaError
	require.ErrorAs(t, report.FilesSkipped[0].Err, &serr)
	assert.Equal(t, bad, serr.Path)
}

func TestMerge_NoUsableFiles(t *testing.T) {
	dir := t.TempDir()
	bad := writeCSV(t, dir, "bad.csv", "Part\nX2\n")

	_, _, err := New(Options{}).Merge(context.Background(), []string{bad})
	require.Error(t, err)
}

func TestMerge_MissingFileAborts(t *testing.T) {
	_, _, err := New(Options{}).Merge(context.Background(), []string{filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)
}

func TestMerge_PreferredSheetWithFallback(t *testing.T) {
	dir := t.TempDir()
	shard := filepath.Join(dir, "shard.xlsx")
	require.NoError(t, tabular.WriteXLSXFile(shard, []tabular.Sheet{
		{Name: "results", Table: &tabular.Table{Header: []string{"No", "Item Code", "Status"}, Rows: [][]string{{"1", "X1", "FOUND"}}}},
		{Name: "crosses", Table: &tabular.Table{Header: []string{"Item Code", "Owner", "Number"}, Rows: [][]string{{"X1", "Acme", "100"}}}},
	}))
	plain := filepath.Join(dir, "plain.xlsx")
	require.NoError(t, tabular.WriteXLSXFile(plain, []tabular.Sheet{
		{Name: "Sheet1", Table: &tabular.Table{Header: []string{"Item Code", "Owner", "Number"}, Rows: [][]string{{"X2", "Beta", "200"}}}},
	}))

	out, _, err := New(Options{Sheet: "crosses"}).Merge(context.Background(), []string{shard, plain})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"X1", "Acme", "100"}, {"X2", "Beta", "200"}}, out.Rows)
}

func TestMerge_ExplodesSerializedCrosses(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "results.csv",
		"Item Code,Status,Crosses\nX1,FOUND,Acme=100; Beta=200\nX2,NOT_FOUND,\nX3,FOUND,No Crosses Found\n")

	out, report, err := New(Options{}).Merge(context.Background(), []string{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"item code", "owner", "number", "status"}, out.Header)
	assert.Equal(t, [][]string{
		{"X1", "Acme", "100", "FOUND"},
		{"X1", "Beta", "200", "FOUND"},
		{"X2", "", "", "NOT_FOUND"},
		{"X3", "", "", "FOUND"},
	}, out.Rows)
	assert.Equal(t, 1, report.RowsExploded)
}

func TestMerge_ValidationJoin(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "Item Code,Owner,Number,Status\nX1,Acme,100,FOUND\nX2,Beta,200,FOUND\n")
	v := writeCSV(t, dir, "validation.csv",
		"ItemCode,Status,Details\nX1.,VALID,ok\nX1,STALE,second row ignored\nX9,VALID,unused\n")

	out, report, err := New(Options{Validation: v}).Merge(context.Background(), []string{a})
	require.NoError(t, err)
	assert.Equal(t, []string{"item code", "owner", "number", "status", "status_validation", "details"}, out.Header)
	assert.Equal(t, [][]string{
		{"X1", "Acme", "100", "FOUND", "VALID", "ok"},
		{"X2", "Beta", "200", "FOUND", "", ""},
	}, out.Rows)
	assert.Equal(t, 1, report.RowsEnriched)
	assert.Equal(t, 2, report.RowsOut)
}

func TestMerge_SortByGroupingColumn(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv",
		"Item Code,Owner,Number,Car Maker\nX1,A,1,toyota\nX2,B,2,\nX3,C,3,Honda\nX4,D,4,Toyota\n")

	out, report, err := New(Options{SortBy: "maker"}).Merge(context.Background(), []string{a})
	require.NoError(t, err)
	assert.Equal(t, "car maker", report.SortedBy)
	codes := make([]string, len(out.Rows))
	for i, r := range out.Rows {
		codes[i] = r[0]
	}
	assert.Equal(t, []string{"X3", "X1", "X4", "X2"}, codes)
}

func TestMerge_SortColumnMissingKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeCSV(t, dir, "a.csv", "Item Code,Owner,Number\nX2,B,2\nX1,A,1\n")

	out, report, err := New(Options{SortBy: "maker"}).Merge(context.Background(), []string{a})
	require.NoError(t, err)
	assert.Empty(t, report.SortedBy)
	assert.Equal(t, "X2", out.Rows[0][0])
}

func TestMerge_PreservesInputOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"c.csv", "a.csv", "b.csv"} {
		paths = append(paths, writeCSV(t, dir, name, "Item Code,Owner,Number\n"+name+",O,1\n"))
	}

	out, _, err := New(Options{Concurrency: 3}).Merge(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, "c.csv", out.Rows[0][0])
	assert.Equal(t, "a.csv", out.Rows[1][0])
	assert.Equal(t, "b.csv", out.Rows[2][0])
}

func TestEnrich_ValidationWithoutItemCode(t *testing.T) {
	base := &tabular.Table{Header: []string{"item code", "owner", "number"}, Rows: [][]string{{"X1", "A", "1"}}}
	v := &tabular.Table{Header: []string{"Code", "Status"}}

	_, _, err := Enrich(base, v, nil)
	var serr *SchemaError
	require.ErrorAs(t, err, &serr)
}

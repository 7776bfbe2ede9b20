package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, name string, sheets []Sheet) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, WriteXLSXFile(path, sheets))
	return path
}

func TestReadCSV_BOMAndTrim(t *testing.T) {
	input := "\ufeffItem Code, Owner ,Number\n A1 ,Acme, 123\n"
	rows, err := ReadCSV(context.Background(), strings.NewReader(input), CSVOptions{TrimSpace: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Item Code", "Owner", "Number"}, rows[0])
	assert.Equal(t, []string{"A1", "Acme", "123"}, rows[1])
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("a,b\n1,2\n"), CSVOptions{})
	require.Error(t, err)
}

func TestRead_CSVPadsShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1\n2,3,4\n"), 0o600))

	tbl, err := Read(context.Background(), path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Header)
	assert.Equal(t, [][]string{{"1", "", ""}, {"2", "3", "4"}}, tbl.Rows)
}

func TestRead_XLSXPreferredSheet(t *testing.T) {
	path := createTestXLSX(t, "shard.xlsx", []Sheet{
		{Name: "results", Table: &Table{Header: []string{"No"}, Rows: [][]string{{"1"}}}},
		{Name: "crosses", Table: &Table{Header: []string{"Item Code", "Owner"}, Rows: [][]string{{"A1", "Acme"}}}},
	})

	tbl, err := Read(context.Background(), path, ReadOptions{Sheet: "crosses"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Item Code", "Owner"}, tbl.Header)
	assert.Equal(t, [][]string{{"A1", "Acme"}}, tbl.Rows)

	// Missing preferred sheet falls back to the first one.
	tbl, err = Read(context.Background(), path, ReadOptions{Sheet: "nope"})
	require.NoError(t, err)
	assert.Equal(t, []string{"No"}, tbl.Header)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Equal(t, "results", f.Sheets[0].Name)
	assert.Equal(t, "crosses", f.Sheets[1].Name)
}

func TestReadXLSX_StrictSheetName(t *testing.T) {
	path := createTestXLSX(t, "a.xlsx", []Sheet{{Name: "one", Table: &Table{Header: []string{"x"}}}})
	_, err := ReadXLSX(path, XLSXOptions{SheetName: "two"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestReadXLSX_HandWrittenWorkbook(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	row := sheet.AddRow()
	row.AddCell().SetString("ITEM CODE")
	row = sheet.AddRow()
	row.AddCell().SetString("JK-100")
	path := filepath.Join(t.TempDir(), "hand.xlsx")
	require.NoError(t, f.Save(path))

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"ITEM CODE"}, {"JK-100"}}, rows)
}

func TestWrite_RoundTripCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	in := &Table{Header: []string{"Item Code", "Crosses"}, Rows: [][]string{{"A1", "Acme=1; Beta=2"}}}
	require.NoError(t, Write(path, in))

	out, err := Read(context.Background(), path, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDetectFormat(t *testing.T) {
	f, err := DetectFormat("x/y/Z.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = DetectFormat("data.xls")
	require.Error(t, err)
}

func TestResolve_HeaderVariants(t *testing.T) {
	for _, h := range []string{"ItemCode", "Item Code", "ITEM CODE", " item_code "} {
		s := Resolve([]string{"Desc", h}, DefaultRules)
		idx, ok := s.Index(FieldItemCode)
		assert.True(t, ok, h)
		assert.Equal(t, 1, idx, h)
	}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	s := Resolve([]string{"Owner Name", "Item Code", "Owner", "Alt Item Code"}, DefaultRules)
	idx, _ := s.Index(FieldItemCode)
	assert.Equal(t, 1, idx)
	idx, _ = s.Index(FieldOwner)
	assert.Equal(t, 0, idx)
	_, ok := s.Index(FieldNumber)
	assert.False(t, ok)

	assert.Equal(t, "A1", s.Get([]string{"x", " A1 "}, FieldItemCode))
	assert.Equal(t, "", s.Get([]string{"x"}, FieldNumber))
}

func TestSchemaFind(t *testing.T) {
	s := Resolve([]string{"Item Code", "Car Maker (OEM)"}, DefaultRules)
	idx, ok := s.Find("Car Maker")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = s.Find("model")
	assert.False(t, ok)
}

func TestNewMaster(t *testing.T) {
	tbl := &Table{
		Header: []string{"No", "ItemCode", "Car Maker"},
		Rows: [][]string{
			{"1", " A1. ", "Toyota"},
			{"2", "", "Honda"},
			{"3", "B2", "Nissan"},
			{"4", "A1", "Mazda"},
		},
	}
	m, err := NewMaster(tbl, "master.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, m.CodeCol)
	require.Len(t, m.Items, 2)
	assert.Equal(t, "A1", m.Items[0].CleanedCode)
	assert.Equal(t, " A1. ", m.Items[0].ItemCode)
	assert.Equal(t, "B2", m.Items[1].CleanedCode)
	assert.Len(t, m.Table.Rows, 3)
	assert.Equal(t, []string{"No", "Car Maker"}, m.ExtraColumns())

	filtered := m.Filter(map[string]bool{"B2": true})
	assert.Equal(t, [][]string{{"3", "B2", "Nissan"}}, filtered.Rows)

	lookup := m.Lookup()
	assert.Equal(t, "Toyota", lookup["A1"][2])
}

func TestNewMaster_NoCodeColumn(t *testing.T) {
	_, err := NewMaster(&Table{Header: []string{"Part", "Brand"}}, "bad.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no item code column")
}

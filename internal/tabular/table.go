// Package tabular reads and writes the CSV and XLSX files the pipeline
// exchanges with operators: master lists, shards, merged datasets and
// validation files.
package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Table is a header plus rows. Rows are padded to the header width on read.
type Table struct {
	Header []string
	Rows   [][]string
}

// Sheet is a named table inside a workbook.
type Sheet struct {
	Name  string
	Table *Table
}

// ReadOptions selects what to read from a file.
type ReadOptions struct {
	// Sheet is the preferred XLSX sheet name. When absent from the workbook
	// the first sheet is used. Ignored for CSV.
	Sheet string
}

// Format identifies a supported file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat infers the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("tabular: unsupported file type %q", filepath.Ext(path))
	}
}

// Read loads the first row of path as the header and the rest as rows.
func Read(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case FormatCSV:
		f, err := os.Open(path) // #nosec G304 -- path comes from operator input
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err = ReadCSV(ctx, f, CSVOptions{TrimSpace: true, LazyQuotes: true})
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: read %s", path)
		}
	case FormatXLSX:
		rows, err = ReadXLSX(path, XLSXOptions{SheetName: opts.Sheet, FallbackFirst: true})
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: read %s", path)
		}
	}

	return FromRows(rows), nil
}

// FromRows splits raw rows into a Table, treating the first row as header.
func FromRows(rows [][]string) *Table {
	t := &Table{}
	if len(rows) == 0 {
		return t
	}
	t.Header = rows[0]
	for _, r := range rows[1:] {
		t.Rows = append(t.Rows, pad(r, len(t.Header)))
	}
	return t
}

// Write saves the table to path in the format implied by its extension.
func Write(path string, t *Table) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatCSV:
		return WriteCSVFile(path, t)
	default:
		return WriteXLSXFile(path, []Sheet{{Name: "Sheet1", Table: t}})
	}
}

// Records returns header plus rows, the shape writers expect.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	out = append(out, t.Rows...)
	return out
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

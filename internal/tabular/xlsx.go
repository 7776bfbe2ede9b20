package tabular

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	// FallbackFirst reads the first sheet when SheetName is missing instead
	// of failing.
	FallbackFirst bool
}

// ReadXLSX reads one sheet of an XLSX file as string rows.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

// WriteXLSX writes the sheets, in order, as one workbook to w.
func WriteXLSX(w io.Writer, sheets []Sheet) error {
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.Name)
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %s", s.Name)
		}
		for _, record := range s.Table.Records() {
			row := sheet.AddRow()
			for _, v := range record {
				row.AddCell().SetString(v)
			}
		}
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write workbook")
	}
	return nil
}

// WriteXLSXFile creates or truncates path and writes the workbook.
func WriteXLSXFile(path string, sheets []Sheet) error {
	out, err := os.Create(path) // #nosec G304 -- path comes from operator input
	if err != nil {
		return eris.Wrapf(err, "xlsx: create %s", path)
	}
	if err := WriteXLSX(out, sheets); err != nil {
		_ = out.Close()
		return err
	}
	return eris.Wrap(out.Close(), "xlsx: close")
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		if sheet, ok := f.Sheet[opts.SheetName]; ok {
			return sheet, nil
		}
		if !opts.FallbackFirst {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		opts.SheetIndex = 0
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

package tabular

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads CSV records and sends them to a channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if first && len(record) > 0 {
				// Spreadsheet exports often lead with a byte-order mark.
				record[0] = strings.TrimPrefix(record[0], "\ufeff")
			}
			first = false

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV collects every record from r.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) ([][]string, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return rows, err
	}
	return rows, nil
}

// WriteCSV writes the table to w.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return eris.Wrap(err, "csv: write")
	}
	return nil
}

// WriteCSVFile creates or truncates path and writes the table.
func WriteCSVFile(path string, t *Table) error {
	f, err := os.Create(path) // #nosec G304 -- path comes from operator input
	if err != nil {
		return eris.Wrapf(err, "csv: create %s", path)
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "csv: close")
}

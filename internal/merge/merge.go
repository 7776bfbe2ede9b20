// Package merge combines result shards and exports into one canonical,
// duplicate-free cross-reference dataset.
package merge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

// Canonical column names of the merged dataset.
const (
	ColItemCode = "item code"
	ColOwner    = "owner"
	ColNumber   = "number"
)

// SchemaError reports an input file without a resolvable item-code column.
type SchemaError struct {
	Path   string
	Header []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("merge: %s has no item code column (header %v)", e.Path, e.Header)
}

// Options configures a merge.
type Options struct {
	// Sheet is the preferred XLSX sheet; the first sheet is used when absent.
	Sheet string
	// Validation is an optional file left-joined on normalized item code.
	Validation string
	// ValidationColumns are the validation columns to add.
	ValidationColumns []string
	// SortBy names a grouping column, matched by substring, to stable-sort on.
	SortBy string
	// Concurrency bounds parallel file reads. Default 4.
	Concurrency int
}

// Skipped is an input left out of the merge.
type Skipped struct {
	Path string
	Err  error
}

// Report counts what the merge did.
type Report struct {
	FilesRead         int
	FilesSkipped      []Skipped
	RowsIn            int
	RowsExploded      int
	EmptyDropped      int
	DuplicatesDropped int
	RowsEnriched      int
	RowsOut           int
	SortedBy          string
}

// Engine runs merges.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Engine{opts: opts}
}

type frame struct {
	path   string
	table  *tabular.Table
	schema tabular.Schema
}

// Merge reads paths and produces the canonical dataset. Files lacking an
// item-code column are skipped and reported; read failures abort.
func (e *Engine) Merge(ctx context.Context, paths []string) (*tabular.Table, *Report, error) {
	if len(paths) == 0 {
		return nil, nil, eris.New("merge: no input files")
	}
	report := &Report{}

	frames := make([]*frame, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			t, err := tabular.Read(gctx, path, tabular.ReadOptions{Sheet: e.opts.Sheet})
			if err != nil {
				return eris.Wrapf(err, "merge: read %s", path)
			}
			frames[i] = &frame{path: path, table: t, schema: tabular.Resolve(t.Header, tabular.DefaultRules)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var usable []*frame
	for _, f := range frames {
		if _, ok := f.schema.Index(tabular.FieldItemCode); !ok {
			serr := &SchemaError{Path: f.path, Header: f.table.Header}
			zap.L().Warn("merge: skipping file", zap.String("path", f.path), zap.Error(serr))
			report.FilesSkipped = append(report.FilesSkipped, Skipped{Path: f.path, Err: serr})
			continue
		}
		report.FilesRead++
		usable = append(usable, f)
	}
	if len(usable) == 0 {
		return nil, report, eris.New("merge: no input file has an item code column")
	}

	out := concat(usable, report)
	out = dropEmpty(out, report)
	out = dedupe(out, report)

	if e.opts.Validation != "" {
		v, err := tabular.Read(ctx, e.opts.Validation, tabular.ReadOptions{})
		if err != nil {
			return nil, report, eris.Wrap(err, "merge: read validation file")
		}
		var matched int
		out, matched, err = Enrich(out, v, e.opts.ValidationColumns)
		if err != nil {
			return nil, report, err
		}
		report.RowsEnriched = matched
	}

	if e.opts.SortBy != "" {
		if col, ok := SortStable(out, e.opts.SortBy); ok {
			report.SortedBy = col
		} else {
			zap.L().Warn("merge: sort column not found, keeping merge order", zap.String("sort_by", e.opts.SortBy))
		}
	}

	report.RowsOut = len(out.Rows)
	return out, report, nil
}

// concat maps every frame onto the union of columns: the three canonical
// columns first, then other headers in first-seen order. Result tables that
// carry a serialized crosses column but no owner/number columns are
// exploded to one row per pair.
func concat(frames []*frame, report *Report) *tabular.Table {
	header := []string{ColItemCode, ColOwner, ColNumber}
	index := map[string]int{ColItemCode: 0, ColOwner: 1, ColNumber: 2}

	type mapping struct {
		f       *frame
		targets []int // source column -> output column, -1 to drop
		crosses int   // source crosses column when exploding, else -1
	}
	maps := make([]mapping, len(frames))
	for fi, f := range frames {
		m := mapping{f: f, targets: make([]int, len(f.schema.Header)), crosses: -1}
		item, _ := f.schema.Index(tabular.FieldItemCode)
		owner, hasOwner := f.schema.Index(tabular.FieldOwner)
		number, hasNumber := f.schema.Index(tabular.FieldNumber)
		if !hasOwner && !hasNumber {
			if c, ok := f.schema.Find("crosses"); ok {
				m.crosses = c
			}
		}

		used := make(map[int]bool)
		for i, name := range f.schema.Header {
			m.targets[i] = -1
			target := -1
			switch {
			case i == item:
				target = 0
			case hasOwner && i == owner:
				target = 1
			case hasNumber && i == number:
				target = 2
			case i == m.crosses || name == "":
				continue
			default:
				idx, ok := index[name]
				if !ok {
					idx = len(header)
					header = append(header, name)
					index[name] = idx
				}
				target = idx
			}
			if used[target] {
				continue
			}
			used[target] = true
			m.targets[i] = target
		}
		maps[fi] = m
	}

	out := &tabular.Table{Header: header}
	for _, m := range maps {
		for _, row := range m.f.table.Rows {
			report.RowsIn++
			base := make([]string, len(header))
			for i, target := range m.targets {
				if target >= 0 && i < len(row) {
					base[target] = strings.TrimSpace(row[i])
				}
			}
			if m.crosses < 0 {
				out.Rows = append(out.Rows, base)
				continue
			}
			pairs := model.ParseCrosses(base[0], row[m.crosses])
			if len(pairs) == 0 {
				out.Rows = append(out.Rows, base)
				continue
			}
			for _, p := range pairs {
				r := append([]string(nil), base...)
				r[1], r[2] = p.Owner, p.Number
				out.Rows = append(out.Rows, r)
			}
			report.RowsExploded += len(pairs) - 1
		}
	}
	return out
}

func dropEmpty(t *tabular.Table, report *Report) *tabular.Table {
	out := &tabular.Table{Header: t.Header, Rows: make([][]string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		empty := true
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				empty = false
				break
			}
		}
		if empty {
			report.EmptyDropped++
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

// dedupe keeps the first row per business key.
func dedupe(t *tabular.Table, report *Report) *tabular.Table {
	out := &tabular.Table{Header: t.Header, Rows: make([][]string, 0, len(t.Rows))}
	seen := make(map[[3]string]bool, len(t.Rows))
	for _, row := range t.Rows {
		key := model.CrossReference{ItemCode: row[0], Owner: row[1], Number: row[2]}.Key()
		if seen[key] {
			report.DuplicatesDropped++
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, row)
	}
	return out
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sells-group/crossref-cli/internal/checkpoint"
	"github.com/sells-group/crossref-cli/internal/crawl"
	"github.com/sells-group/crossref-cli/internal/extract"
	"github.com/sells-group/crossref-cli/internal/merge"
	"github.com/sells-group/crossref-cli/internal/model"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// formatCrawlSummary writes the end-of-run report.
func formatCrawlSummary(w io.Writer, s *crawl.Summary) {
	t := newTable(w)
	t.SetTitle("Crawl " + truncateID(s.RunID))
	t.AppendRows([]table.Row{
		{"Status", s.Status},
		{"Master items", s.Total},
		{"Already done", s.Skipped},
		{"Queued this run", s.Remaining},
		{"Processed", s.Counters.Processed},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{model.StatusFound, s.Counters.Found},
		{model.StatusNotFound, s.Counters.NotFound},
		{model.StatusCheckManual, s.Counters.CheckManual},
		{model.StatusError, s.Counters.Errors},
		{"Cross references", s.Counters.Crosses},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Shards written", len(s.Shards)},
		{"Session recreations", s.Recreations},
		{"Elapsed", s.Elapsed.Round(time.Second)},
	})
	t.Render()
}

// formatRemaining writes resume progress.
func formatRemaining(w io.Writer, total, shards int, l *checkpoint.Ledger, rest []model.ItemQuery) {
	counts := statusCounts(l)
	t := newTable(w)
	t.AppendHeader(table.Row{"", "Items"})
	t.AppendRow(table.Row{"Master list", total})
	t.AppendRow(table.Row{fmt.Sprintf("In %d shard(s)", shards), len(l.Status)})
	for _, st := range model.AllStatuses() {
		t.AppendRow(table.Row{"  " + string(st), counts[st]})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Remaining", len(rest)})
	t.Render()
}

// formatMergeReport writes the merge counters.
func formatMergeReport(w io.Writer, r *merge.Report) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Merge", "Count"})
	t.AppendRows([]table.Row{
		{"Files read", r.FilesRead},
		{"Files skipped", len(r.FilesSkipped)},
		{"Rows in", r.RowsIn},
		{"Rows from exploded crosses", r.RowsExploded},
		{"Empty rows dropped", r.EmptyDropped},
		{"Duplicates dropped", r.DuplicatesDropped},
		{"Rows enriched", r.RowsEnriched},
		{"Rows out", r.RowsOut},
	})
	if r.SortedBy != "" {
		t.AppendFooter(table.Row{"Sorted by", r.SortedBy})
	}
	t.Render()

	if len(r.FilesSkipped) == 0 {
		return
	}
	s := newTable(w)
	s.AppendHeader(table.Row{"Skipped file", "Reason"})
	for _, sk := range r.FilesSkipped {
		s.AppendRow(table.Row{sk.Path, sk.Err.Error()})
	}
	s.Render()
}

// formatRunsList writes a list of runs.
func formatRunsList(w io.Writer, runs []model.Run) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Input", "Status", "Processed", "Found", "Errors", "Started", "Duration"})
	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			truncateID(r.ID),
			r.Input,
			r.Status,
			fmt.Sprintf("%d/%d", r.Counters.Processed, r.Total),
			r.Counters.Found,
			r.Counters.Errors,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		})
	}
	t.Render()
}

// formatFailures writes the failed items.
func formatFailures(w io.Writer, failures []model.Failure) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Run", "Item Code", "Type", "Attempts", "Failed", "Error"})
	for _, f := range failures {
		msg := f.Error
		if len(msg) > 80 {
			msg = msg[:77] + "..."
		}
		t.AppendRow(table.Row{
			truncateID(f.RunID),
			f.ItemCode,
			f.ErrorType,
			f.Attempts,
			f.FailedAt.Format("2006-01-02 15:04:05"),
			msg,
		})
	}
	t.Render()
}

// formatExtraction writes one page's classification and pairs.
func formatExtraction(w io.Writer, code string, cls extract.Classification, pairs []extract.Pair) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("%s: %s (%s)", code, cls.Status, cls.Details))
	t.AppendHeader(table.Row{"#", "Owner", "Number", "Strategy"})
	for i, p := range pairs {
		t.AppendRow(table.Row{i + 1, p.Owner, p.Number, p.Strategy})
	}
	if len(pairs) == 0 {
		t.AppendFooter(table.Row{"", model.NoCrossesMarker})
	}
	t.Render()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

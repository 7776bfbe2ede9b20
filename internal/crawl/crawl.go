// Package crawl drives the sequential query, classify, extract and
// checkpoint loop over a master list.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/catalog"
	"github.com/sells-group/crossref-cli/internal/checkpoint"
	"github.com/sells-group/crossref-cli/internal/extract"
	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/resilience"
	"github.com/sells-group/crossref-cli/internal/store"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

// Options controls one crawl run.
type Options struct {
	// Input names the master list in the run ledger.
	Input string
	// BatchSize is the number of items per shard. Default 50.
	BatchSize int
	// Limit caps the number of remaining items processed. Zero means all.
	Limit int
	// RetryErrors re-queues codes whose latest shard status is ERROR.
	RetryErrors bool
	// DebugDir receives the page of every FOUND item without pairs.
	DebugDir string
	// WithInputColumns carries the master's descriptive columns into the
	// crosses sheet.
	WithInputColumns bool
}

// Summary reports a finished or interrupted run.
type Summary struct {
	RunID       string
	Status      model.RunStatus
	Total       int
	Skipped     int
	Remaining   int
	Counters    model.Counters
	Shards      []model.ShardInfo
	Recreations int
	Elapsed     time.Duration
}

// Crawler wires the session manager, classifier, extraction engine and
// checkpoint writer into the item loop.
type Crawler struct {
	manager     *catalog.Manager
	classifier  *extract.Classifier
	engine      *extract.Engine
	checkpoints *checkpoint.Manager
	store       store.Store
	opts        Options

	nowFunc func() time.Time
}

// New creates a Crawler.
func New(
	manager *catalog.Manager,
	classifier *extract.Classifier,
	engine *extract.Engine,
	checkpoints *checkpoint.Manager,
	st store.Store,
	opts Options,
) *Crawler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Crawler{
		manager:     manager,
		classifier:  classifier,
		engine:      engine,
		checkpoints: checkpoints,
		store:       st,
		opts:        opts,
		nowFunc:     time.Now,
	}
}

// Run processes every master item not already present in a shard. Items
// are handled one at a time. Cancelling ctx stops the loop between items;
// the item in flight completes and the partial batch is flushed.
func (c *Crawler) Run(ctx context.Context, master *tabular.Master) (*Summary, error) {
	start := c.nowFunc()
	log := zap.L().With(zap.String("component", "crawl"), zap.String("input", c.opts.Input))
	defer func() {
		if err := c.manager.Close(); err != nil {
			log.Warn("crawl: close session", zap.Error(err))
		}
	}()

	shards, err := c.checkpoints.List()
	if err != nil {
		return nil, err
	}
	ledger, err := checkpoint.Scan(ctx, shards)
	if err != nil {
		return nil, err
	}
	done := ledger.Done(c.opts.RetryErrors)
	remaining := checkpoint.Remaining(master.Items, done)

	summary := &Summary{
		Total:   len(master.Items),
		Skipped: len(master.Items) - len(remaining),
	}
	if c.opts.Limit > 0 && len(remaining) > c.opts.Limit {
		remaining = remaining[:c.opts.Limit]
	}
	summary.Remaining = len(remaining)

	if c.opts.WithInputColumns {
		c.checkpoints.JoinInput(master)
	}

	seq, err := c.checkpoints.NextSeq()
	if err != nil {
		return nil, err
	}

	run, err := c.store.CreateRun(ctx, c.opts.Input, len(remaining))
	if err != nil {
		return nil, eris.Wrap(err, "crawl: create run")
	}
	summary.RunID = run.ID
	log = log.With(zap.String("run_id", run.ID))
	log.Info("crawl: starting",
		zap.Int("total", summary.Total),
		zap.Int("already_done", summary.Skipped),
		zap.Int("to_process", len(remaining)),
		zap.Strings("strategies", c.engine.Strategies()),
	)

	position := make(map[string]int, len(master.Items))
	for i, q := range master.Items {
		position[q.Key()] = i + 1
	}

	// Bookkeeping after the loop must survive an interrupt.
	bg := context.WithoutCancel(ctx)

	var batch []model.QueryResult
	flush := func() error {
		info, err := c.flush(batch, &seq)
		if err != nil {
			return err
		}
		batch = nil
		if info == nil {
			return nil
		}
		summary.Shards = append(summary.Shards, *info)
		if err := c.store.RecordShard(bg, run.ID, *info); err != nil {
			log.Warn("crawl: record shard", zap.Error(err))
		}
		if err := c.store.UpdateRunCounters(bg, run.ID, summary.Counters); err != nil {
			log.Warn("crawl: update counters", zap.Error(err))
		}
		return nil
	}

	status := model.RunStatusComplete
	for _, q := range remaining {
		if ctx.Err() != nil {
			status = model.RunStatusInterrupted
			log.Warn("crawl: interrupted, flushing partial batch", zap.Int("pending", len(batch)))
			break
		}

		res := c.process(bg, run.ID, position[q.Key()], q)
		batch = append(batch, res)
		summary.Counters.Add(res)
		c.manager.Done()

		if len(batch) >= c.opts.BatchSize {
			if err := flush(); err != nil {
				c.finish(bg, run.ID, model.RunStatusFailed, summary)
				return summary, err
			}
		}
	}

	if err := flush(); err != nil {
		c.finish(bg, run.ID, model.RunStatusFailed, summary)
		return summary, err
	}

	summary.Recreations = c.manager.Recreations()
	summary.Elapsed = c.nowFunc().Sub(start)
	c.finish(bg, run.ID, status, summary)
	log.Info("crawl: finished",
		zap.String("status", string(status)),
		zap.Int("processed", summary.Counters.Processed),
		zap.Int("found", summary.Counters.Found),
		zap.Int("not_found", summary.Counters.NotFound),
		zap.Int("check_manual", summary.Counters.CheckManual),
		zap.Int("errors", summary.Counters.Errors),
		zap.Int("crosses", summary.Counters.Crosses),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// process queries, classifies and extracts one item. Failures become an
// ERROR result; they never stop the run.
func (c *Crawler) process(ctx context.Context, runID string, no int, q model.ItemQuery) model.QueryResult {
	log := zap.L().With(zap.String("component", "crawl"), zap.String("item_code", q.CleanedCode))
	res := model.QueryResult{
		No:          no,
		ItemCode:    q.ItemCode,
		CleanedCode: q.CleanedCode,
	}

	content, outcome, err := c.manager.Query(ctx, q)
	res.Timestamp = c.nowFunc()
	if err != nil {
		res.Status = model.StatusError
		res.Details = shortError(err)
		log.Error("crawl: item failed", zap.Int("attempts", outcome.Attempts), zap.Error(err))
		c.recordFailure(ctx, runID, q, outcome.Attempts, err)
		return res
	}

	cls := c.classifier.Classify(content.Text, q.CleanedCode)
	res.Status = cls.Status
	res.ItemType = cls.ItemType
	res.MatchedCode = cls.MatchedCode
	res.Details = cls.Details

	if cls.Status == model.StatusFound {
		for _, p := range c.engine.Extract(ctx, content) {
			res.Crosses = append(res.Crosses, model.CrossReference{
				ItemCode: q.CleanedCode,
				Owner:    p.Owner,
				Number:   p.Number,
				Strategy: p.Strategy,
			})
		}
		if len(res.Crosses) == 0 {
			c.dumpDebug(q, content)
		}
	}

	log.Info("crawl: item processed",
		zap.String("status", string(res.Status)),
		zap.String("details", res.Details),
		zap.Int("crosses", len(res.Crosses)),
		zap.Int("attempts", outcome.Attempts),
	)
	return res
}

// flush writes batch as the next shard and advances seq. A name collision
// moves on to the following sequence number once.
func (c *Crawler) flush(batch []model.QueryResult, seq *int) (*model.ShardInfo, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	info, err := c.checkpoints.Flush(batch, *seq)
	if errors.Is(err, checkpoint.ErrShardExists) {
		*seq++
		info, err = c.checkpoints.Flush(batch, *seq)
	}
	if err != nil {
		return nil, eris.Wrap(err, "crawl: flush shard")
	}
	*seq++
	return info, nil
}

func (c *Crawler) recordFailure(ctx context.Context, runID string, q model.ItemQuery, attempts int, cause error) {
	f := &model.Failure{
		RunID:     runID,
		ItemCode:  q.CleanedCode,
		Error:     cause.Error(),
		ErrorType: resilience.ClassifyError(cause),
		Attempts:  attempts,
		FailedAt:  c.nowFunc().UTC(),
	}
	if err := c.store.RecordFailure(ctx, f); err != nil {
		zap.L().Warn("crawl: record failure", zap.String("item_code", q.CleanedCode), zap.Error(err))
	}
}

func (c *Crawler) finish(ctx context.Context, runID string, status model.RunStatus, summary *Summary) {
	summary.Status = status
	if err := c.store.FinishRun(ctx, runID, status, summary.Counters); err != nil {
		zap.L().Warn("crawl: finish run", zap.String("run_id", runID), zap.Error(err))
	}
}

// maxDetails bounds the error text kept in a shard's Details cell; the full
// chain goes to the failure ledger.
const maxDetails = 120

func shortError(err error) string {
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxDetails {
		return msg
	}
	return string([]rune(msg)[:maxDetails])
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// dumpDebug saves the page of a FOUND item that yielded no pairs.
func (c *Crawler) dumpDebug(q model.ItemQuery, content *catalog.Content) {
	if c.opts.DebugDir == "" {
		return
	}
	log := zap.L().With(zap.String("item_code", q.CleanedCode))
	html, err := content.HTML()
	if err != nil {
		log.Warn("crawl: render debug page", zap.Error(err))
		return
	}
	if err := os.MkdirAll(c.opts.DebugDir, 0o750); err != nil {
		log.Warn("crawl: create debug dir", zap.Error(err))
		return
	}
	name := fmt.Sprintf("debug_%s_%d.html", unsafeName.ReplaceAllString(q.CleanedCode, "_"), c.nowFunc().Unix())
	path := filepath.Join(c.opts.DebugDir, name)
	if err := os.WriteFile(path, []byte(html), 0o600); err != nil {
		log.Warn("crawl: write debug page", zap.Error(err))
		return
	}
	log.Info("crawl: no crosses extracted, page saved", zap.String("path", path))
}

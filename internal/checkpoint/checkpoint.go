// Package checkpoint persists crawl progress as immutable XLSX shards and
// works out which item codes still need querying.
package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crossref-cli/internal/model"
	"github.com/sells-group/crossref-cli/internal/tabular"
)

// ErrShardExists is returned when a shard file name is already taken.
// Existing shards are never overwritten.
var ErrShardExists = eris.New("checkpoint: shard already exists")

// Manager writes and discovers shards in one directory.
type Manager struct {
	dir     string
	prefix  string
	pattern *regexp.Regexp
	input   *tabular.Master

	nowFunc func() time.Time
}

// NewManager creates dir if needed.
func NewManager(dir, prefix string) (*Manager, error) {
	if prefix == "" {
		prefix = "autosave"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, eris.Wrapf(err, "checkpoint: create dir %s", dir)
	}
	return &Manager{
		dir:     dir,
		prefix:  prefix,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `_(\d+)_.*\.xlsx$`),
		nowFunc: time.Now,
	}, nil
}

// Dir returns the shard directory.
func (m *Manager) Dir() string { return m.dir }

// JoinInput makes later shards carry master's descriptive columns on the
// crosses sheet.
func (m *Manager) JoinInput(master *tabular.Master) { m.input = master }

// Flush writes results as shard seq. Nothing is written for an empty batch
// and a nil info is returned.
func (m *Manager) Flush(results []model.QueryResult, seq int) (*model.ShardInfo, error) {
	if len(results) == 0 {
		return nil, nil
	}

	now := m.nowFunc()
	name := fmt.Sprintf("%s_%04d_%s.xlsx", m.prefix, seq, now.Format("20060102_150405"))
	final := filepath.Join(m.dir, name)

	crosses := CrossesTable(results)
	if m.input != nil {
		crosses = JoinInput(crosses, m.input)
	}
	var buf bytes.Buffer
	err := tabular.WriteXLSX(&buf, []tabular.Sheet{
		{Name: ResultsSheet, Table: ResultsTable(results)},
		{Name: CrossesSheet, Table: crosses},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: render shard %d", seq)
	}

	if err := writeExclusive(m.dir, final, buf.Bytes()); err != nil {
		return nil, err
	}

	info := &model.ShardInfo{
		Seq:       seq,
		Path:      final,
		Items:     len(results),
		Crosses:   len(crosses.Rows),
		CreatedAt: now,
	}
	zap.L().Info("checkpoint: shard written",
		zap.String("path", final),
		zap.Int("items", info.Items),
		zap.Int("crosses", info.Crosses),
	)
	return info, nil
}

// writeExclusive stages data in a temp file and links it into place only if
// target does not exist yet, so a crash never leaves a half-written shard
// under its final name.
func writeExclusive(dir, target string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".shard-*.tmp")
	if err != nil {
		return eris.Wrap(err, "checkpoint: create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "checkpoint: write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return eris.Wrap(err, "checkpoint: sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "checkpoint: close temp file")
	}

	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return eris.Wrapf(ErrShardExists, "checkpoint: %s", filepath.Base(target))
		}
		return eris.Wrapf(err, "checkpoint: link %s", filepath.Base(target))
	}
	return nil
}

// List returns shard paths ordered by sequence, then name.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: read dir %s", m.dir)
	}

	type shard struct {
		seq  int
		name string
	}
	var shards []shard
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := m.pattern.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		seq, _ := strconv.Atoi(match[1])
		shards = append(shards, shard{seq: seq, name: e.Name()})
	}
	sort.Slice(shards, func(i, j int) bool {
		if shards[i].seq != shards[j].seq {
			return shards[i].seq < shards[j].seq
		}
		return shards[i].name < shards[j].name
	})

	paths := make([]string, len(shards))
	for i, s := range shards {
		paths[i] = filepath.Join(m.dir, s.name)
	}
	return paths, nil
}

// NextSeq returns one past the highest existing sequence number.
func (m *Manager) NextSeq() (int, error) {
	paths, err := m.List()
	if err != nil {
		return 0, err
	}
	next := 1
	for _, p := range paths {
		match := m.pattern.FindStringSubmatch(filepath.Base(p))
		if seq, _ := strconv.Atoi(match[1]); seq >= next {
			next = seq + 1
		}
	}
	return next, nil
}

// Ledger is the latest status seen per normalized item code across shards.
type Ledger struct {
	Status map[string]model.Status
	// Order lists codes in first-seen order.
	Order []string
}

// Scan reads the results sheet of every shard. Shards without a resolvable
// item-code column are skipped with a warning. Later shards override the
// status recorded by earlier ones.
func Scan(ctx context.Context, shards []string) (*Ledger, error) {
	l := &Ledger{Status: make(map[string]model.Status)}
	for _, path := range shards {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "checkpoint: scan cancelled")
		}
		t, err := tabular.Read(ctx, path, tabular.ReadOptions{Sheet: ResultsSheet})
		if err != nil {
			return nil, eris.Wrapf(err, "checkpoint: read shard %s", path)
		}
		schema := tabular.Resolve(t.Header, tabular.DefaultRules)
		if _, ok := schema.Index(tabular.FieldItemCode); !ok {
			zap.L().Warn("checkpoint: shard has no item code column, skipping", zap.String("path", path))
			continue
		}
		statusCol, hasStatus := schema.Find("status")
		for _, row := range t.Rows {
			code := model.NormalizeCode(schema.Get(row, tabular.FieldItemCode))
			if code == "" {
				continue
			}
			status := model.Status("")
			if hasStatus {
				status, _ = model.ParseStatus(row[statusCol])
			}
			if _, seen := l.Status[code]; !seen {
				l.Order = append(l.Order, code)
			}
			l.Status[code] = status
		}
	}
	return l, nil
}

// Done returns the codes that need no further querying. Any row for a code
// marks it done, whatever it holds. With retryErrors set, codes whose latest
// status is ERROR are left out.
func (l *Ledger) Done(retryErrors bool) map[string]bool {
	done := make(map[string]bool, len(l.Status))
	for code, st := range l.Status {
		if retryErrors && st == model.StatusError {
			continue
		}
		done[code] = true
	}
	return done
}

// Remaining returns the master items not in done, in master order.
func Remaining(master []model.ItemQuery, done map[string]bool) []model.ItemQuery {
	out := make([]model.ItemQuery, 0, len(master))
	for _, q := range master {
		if !done[q.Key()] {
			out = append(out, q)
		}
	}
	return out
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crossref-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	input       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	total       INTEGER NOT NULL DEFAULT 0,
	counters    TEXT NOT NULL DEFAULT '{}',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_shards (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	seq        INTEGER NOT NULL,
	path       TEXT NOT NULL,
	items      INTEGER NOT NULL,
	crosses    INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS failed_items (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	item_code  TEXT NOT NULL,
	error      TEXT NOT NULL,
	error_type TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	failed_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_input ON runs(input);
CREATE INDEX IF NOT EXISTS idx_failed_items_run_id ON failed_items(run_id);
CREATE INDEX IF NOT EXISTS idx_failed_items_item_code ON failed_items(item_code);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, input string, total int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input, status, total, counters, started_at) VALUES (?, ?, ?, ?, '{}', ?)`,
		id, input, string(model.RunStatusRunning), total, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Input:     input,
		Status:    model.RunStatusRunning,
		Total:     total,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunCounters(ctx context.Context, runID string, counters model.Counters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counters")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET counters = ? WHERE id = ?`,
		string(countersJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run counters %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, counters model.Counters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal counters")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, counters = ?, finished_at = ? WHERE id = ?`,
		string(status), string(countersJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, input, status, total, counters, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, input, status, total, counters, started_at, finished_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Input != "" {
		query += ` AND input = ?`
		args = append(args, filter.Input)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordShard(ctx context.Context, runID string, info model.ShardInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_shards (run_id, seq, path, items, crosses, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, info.Seq, info.Path, info.Items, info.Crosses, info.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record shard %d for run %s", info.Seq, runID)
}

func (s *SQLiteStore) ListShards(ctx context.Context, runID string) ([]model.ShardInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, path, items, crosses, created_at FROM run_shards WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list shards")
	}
	defer rows.Close() //nolint:errcheck

	var shards []model.ShardInfo
	for rows.Next() {
		var si model.ShardInfo
		if err := rows.Scan(&si.Seq, &si.Path, &si.Items, &si.Crosses, &si.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan shard")
		}
		shards = append(shards, si)
	}
	return shards, eris.Wrap(rows.Err(), "sqlite: list shards iterate")
}

// RecordFailure stores f, assigning an ID and FailedAt when unset.
func (s *SQLiteStore) RecordFailure(ctx context.Context, f *model.Failure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failed_items (id, run_id, item_code, error, error_type, attempts, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RunID, f.ItemCode, f.Error, f.ErrorType, f.Attempts, f.FailedAt,
	)
	return eris.Wrapf(err, "sqlite: record failure %s", f.ItemCode)
}

func (s *SQLiteStore) ListFailures(ctx context.Context, filter FailureFilter) ([]model.Failure, error) {
	query := `SELECT id, run_id, item_code, error, error_type, attempts, failed_at FROM failed_items WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY failed_at, item_code`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close() //nolint:errcheck

	var failures []model.Failure
	for rows.Next() {
		var f model.Failure
		if err := rows.Scan(&f.ID, &f.RunID, &f.ItemCode, &f.Error, &f.ErrorType, &f.Attempts, &f.FailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		failures = append(failures, f)
	}
	return failures, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var countersJSON string
	var finished sql.NullTime

	err := row.Scan(&r.ID, &r.Input, &r.Status, &r.Total, &countersJSON, &r.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(countersJSON), &r.Counters); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal counters")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

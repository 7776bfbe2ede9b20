// Package store records crawl runs, their shards and failed items.
package store

import (
	"context"

	"github.com/sells-group/crossref-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Input  string          `json:"input,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// FailureFilter specifies criteria for listing failed items.
type FailureFilter struct {
	RunID     string `json:"run_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the run ledger.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, input string, total int) (*model.Run, error)
	UpdateRunCounters(ctx context.Context, runID string, counters model.Counters) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, counters model.Counters) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Shards
	RecordShard(ctx context.Context, runID string, info model.ShardInfo) error
	ListShards(ctx context.Context, runID string) ([]model.ShardInfo, error)

	// Failures
	RecordFailure(ctx context.Context, f *model.Failure) error
	ListFailures(ctx context.Context, filter FailureFilter) ([]model.Failure, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

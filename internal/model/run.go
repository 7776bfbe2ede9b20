package model

import "time"

// RunStatus represents the state of a crawl run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusComplete    RunStatus = "complete"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusFailed      RunStatus = "failed"
)

// Counters aggregates per-status item counts for a run.
type Counters struct {
	Processed   int `json:"processed"`
	Found       int `json:"found"`
	NotFound    int `json:"not_found"`
	CheckManual int `json:"check_manual"`
	Errors      int `json:"errors"`
	Crosses     int `json:"crosses"`
}

// Add records one query result.
func (c *Counters) Add(r QueryResult) {
	c.Processed++
	c.Crosses += len(r.Crosses)
	switch r.Status {
	case StatusFound:
		c.Found++
	case StatusNotFound:
		c.NotFound++
	case StatusCheckManual:
		c.CheckManual++
	case StatusError:
		c.Errors++
	}
}

// Run is one invocation of the crawl loop.
type Run struct {
	ID         string     `json:"id"`
	Input      string     `json:"input"`
	Status     RunStatus  `json:"status"`
	Total      int        `json:"total"`
	Counters   Counters   `json:"counters"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ShardInfo describes a shard file written at a checkpoint boundary.
type ShardInfo struct {
	Seq       int       `json:"seq"`
	Path      string    `json:"path"`
	Items     int       `json:"items"`
	Crosses   int       `json:"crosses"`
	CreatedAt time.Time `json:"created_at"`
}

// Failure is an item that ended a run in ERROR.
type Failure struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	ItemCode  string    `json:"item_code"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"` // "transient" or "permanent"
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

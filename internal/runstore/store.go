// Package runstore keeps a history of enrichment runs and their reports.
package runstore

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-enrich/internal/stats"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = eris.New("runstore: run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded enrichment run.
type Run struct {
	ID        string        `json:"id"`
	Input     string        `json:"input"`
	Output    string        `json:"output,omitempty"`
	CacheFile string        `json:"cache_file"`
	Status    RunStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	Report    *stats.Report `json:"report,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store persists runs.
type Store interface {
	CreateRun(ctx context.Context, input, cacheFile string) (*Run, error)
	CompleteRun(ctx context.Context, runID, output string, report *stats.Report) error
	FailRun(ctx context.Context, runID string, runErr error, report *stats.Report) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

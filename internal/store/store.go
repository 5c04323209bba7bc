// Package store persists the retrieval log: one run per match-and-retrieve
// invocation plus a summary row for every trace it produced.
package store

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"

	"github.com/sells-group/gmprocess-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Agency string          `json:"agency,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for the retrieval log.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, agency string, origin model.Origin) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)
	CountRuns(ctx context.Context) (map[model.RunStatus]int, error)

	// Traces
	RecordTraces(ctx context.Context, runID string, traces []model.TraceRecord) (int64, error)
	ListTraces(ctx context.Context, runID string) ([]model.TraceRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Option configures a store backend.
type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock sets the clock used for run timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func applyOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

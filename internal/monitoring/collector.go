package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gmprocess-cli/internal/model"
)

// Snapshot is a point-in-time summary of the retrieval log.
type Snapshot struct {
	Total       int       `json:"total"`
	Queued      int       `json:"queued"`
	Matched     int       `json:"matched"`
	Complete    int       `json:"complete"`
	Failed      int       `json:"failed"`
	FailRate    float64   `json:"fail_rate"`
	CollectedAt time.Time `json:"collected_at"`
}

// RunCounter is the part of the store the collector reads.
type RunCounter interface {
	CountRuns(ctx context.Context) (map[model.RunStatus]int, error)
}

// Collector summarizes the run log and mirrors it into the run gauges.
type Collector struct {
	runs    RunCounter
	metrics *Metrics
	clock   clockwork.Clock
}

// NewCollector creates a collector. metrics may be nil.
func NewCollector(runs RunCounter, metrics *Metrics, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, metrics: metrics, clock: clock}
}

// Collect counts runs by status and updates the run gauges.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	counts, err := c.runs.CountRuns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count runs")
	}
	c.metrics.SetRunCounts(counts)

	snap := &Snapshot{
		Queued:      counts[model.RunStatusQueued],
		Matched:     counts[model.RunStatusMatched],
		Complete:    counts[model.RunStatusComplete],
		Failed:      counts[model.RunStatusFailed],
		CollectedAt: c.clock.Now().UTC(),
	}
	for _, n := range counts {
		snap.Total += n
	}
	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}

package source

import (
	"context"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/monitoring"
	"github.com/sells-group/gmprocess-cli/internal/store"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

// Outcome is the result of one Runner.Run call.
type Outcome struct {
	Run        *model.Run
	Events     []model.CandidateEvent
	Collection *waveform.Collection
}

// Runner matches an origin, retrieves the first matching event and records
// the run in the store.
type Runner struct {
	store   store.Store
	metrics *monitoring.Metrics
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(s store.Store, metrics *monitoring.Metrics) *Runner {
	return &Runner{store: s, metrics: metrics}
}

// Run executes f. A match with no events completes the run without
// retrieving anything. Any failure marks the run failed and is returned.
func (r *Runner) Run(ctx context.Context, f DataFetcher, solve bool) (*Outcome, error) {
	run, err := r.store.CreateRun(ctx, f.Name(), f.Origin())
	if err != nil {
		return nil, eris.Wrap(err, "source: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("agency", f.Name()))

	out, err := r.execute(ctx, run, f, solve, log)
	if err != nil {
		if failErr := r.store.FailRun(context.WithoutCancel(ctx), run.ID, err); failErr != nil {
			log.Error("source: record failed run", zap.Error(failErr))
		}
		r.refreshCounts(ctx, log)
		return nil, eris.Wrapf(err, "source: run %s", run.ID)
	}
	r.refreshCounts(ctx, log)
	return out, nil
}

func (r *Runner) execute(ctx context.Context, run *model.Run, f DataFetcher, solve bool, log *zap.Logger) (*Outcome, error) {
	groups, err := f.MatchingEvents(ctx, solve)
	if err != nil {
		return nil, err
	}
	events := Flatten(groups)
	out := &Outcome{Run: run, Events: events}

	if len(events) == 0 {
		log.Info("source: no matching events")
		if err := r.store.CompleteRun(ctx, run.ID, &model.RunResult{}); err != nil {
			return nil, eris.Wrap(err, "source: complete run")
		}
		return r.reload(ctx, out)
	}

	if err := r.store.UpdateRunStatus(ctx, run.ID, model.RunStatusMatched); err != nil {
		return nil, eris.Wrap(err, "source: mark matched")
	}

	ev := events[0]
	coll, err := f.RetrieveData(ctx, ev)
	if err != nil {
		return nil, err
	}
	out.Collection = coll

	records := TraceRecords(run.ID, coll)
	if _, err := r.store.RecordTraces(ctx, run.ID, records); err != nil {
		return nil, eris.Wrap(err, "source: record traces")
	}

	result := &model.RunResult{
		Event:      &ev,
		EventCount: len(events),
		FileCount:  countSources(records),
		TraceCount: len(records),
	}
	if err := r.store.CompleteRun(ctx, run.ID, result); err != nil {
		return nil, eris.Wrap(err, "source: complete run")
	}
	log.Info("source: run complete",
		zap.String("event", ev.ID),
		zap.Int("files", result.FileCount),
		zap.Int("traces", result.TraceCount),
	)
	return r.reload(ctx, out)
}

func (r *Runner) reload(ctx context.Context, out *Outcome) (*Outcome, error) {
	run, err := r.store.GetRun(ctx, out.Run.ID)
	if err != nil {
		return nil, eris.Wrap(err, "source: reload run")
	}
	out.Run = run
	return out, nil
}

func (r *Runner) refreshCounts(ctx context.Context, log *zap.Logger) {
	if r.metrics == nil {
		return
	}
	counts, err := r.store.CountRuns(context.WithoutCancel(ctx))
	if err != nil {
		log.Warn("source: count runs", zap.Error(err))
		return
	}
	r.metrics.SetRunCounts(counts)
}

// TraceRecords summarizes every trace in coll for the retrieval log.
func TraceRecords(runID string, coll *waveform.Collection) []model.TraceRecord {
	if coll == nil {
		return nil
	}
	traces := coll.Traces()
	out := make([]model.TraceRecord, 0, len(traces))
	for _, tr := range traces {
		out = append(out, model.TraceRecord{
			RunID:        runID,
			TraceID:      tr.ID(),
			Station:      tr.Station,
			Channel:      tr.Channel,
			StartTime:    tr.StartTime,
			SamplingRate: tr.SamplingRate,
			Samples:      tr.Len(),
			Source:       sourceName(tr.Source),
		})
	}
	return out
}

func sourceName(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}

func countSources(records []model.TraceRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.Source] = struct{}{}
	}
	return len(seen)
}

package source

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/gmprocess-cli/internal/config"
	"github.com/sells-group/gmprocess-cli/internal/geonet"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/monitoring"
	"github.com/sells-group/gmprocess-cli/internal/store"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testOrigin = model.NewOrigin(time.Date(2016, 11, 13, 11, 2, 56, 0, time.UTC), -42.6925, 173.0221, 22, 7.8)

type fakeFetcher struct {
	events       []model.CandidateEvent
	matchErr     error
	traces       []waveform.Trace
	retrieveErr  error
	retrievedFor *model.CandidateEvent
}

func (f *fakeFetcher) Name() string         { return "fake" }
func (f *fakeFetcher) Origin() model.Origin { return testOrigin }

func (f *fakeFetcher) MatchingEvents(context.Context, bool) ([][]model.CandidateEvent, error) {
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	return [][]model.CandidateEvent{f.events}, nil
}

func (f *fakeFetcher) RetrieveData(_ context.Context, ev model.CandidateEvent) (*waveform.Collection, error) {
	f.retrievedFor = &ev
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	return waveform.NewCollection(f.traces), nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.GeoNet.CatalogURL = "https://example.test/csv?start=%s&end=%s"
	cfg.GeoNet.ArchiveURL = "ftp://ftp.example.test/Proc/[YEAR]/[MONTH]/"
	cfg.GeoNet.CatalogWindowSecs = 1800
	cfg.GeoNet.VolumePrefix = "Vol1"
	cfg.GeoNet.FileExtension = "V1A"
	cfg.GeoNet.MaxAttempts = 3
	cfg.GeoNet.ParseWorkers = 2
	cfg.GeoNet.HTTPTimeoutSecs = 5
	cfg.GeoNet.FTPTimeoutSecs = 5
	cfg.Search = config.SearchConfig{RadiusKM: 80, TimeWindowSecs: 12.5, DepthWindowKM: 30, MagnitudeWindow: 0.3}
	return cfg
}

func TestFlatten(t *testing.T) {
	a := model.CandidateEvent{ID: "a"}
	b := model.CandidateEvent{ID: "b"}
	assert.Equal(t, []model.CandidateEvent{a, b}, Flatten([][]model.CandidateEvent{{a}, {}, {b}}))
	assert.Empty(t, Flatten(nil))
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	r := NewRegistry()
	mk := func(name string) Agency {
		return Agency{Name: name, New: func(model.Origin, model.SearchTolerances) (DataFetcher, error) {
			return &fakeFetcher{}, nil
		}}
	}
	r.Register(mk("geonet"))
	r.Register(mk("knet"))
	r.Register(mk("geonet"))

	assert.Equal(t, []string{"geonet", "knet"}, r.Names())
	assert.Len(t, r.All(), 2)

	_, err := r.Get("cwb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown agency "cwb"`)

	f, err := r.Open("knet", testOrigin, model.DefaultTolerances())
	require.NoError(t, err)
	assert.Equal(t, "fake", f.Name())
}

func TestRegistry_OpenWrapsConstructorError(t *testing.T) {
	r := NewRegistry()
	r.Register(Agency{Name: "bad", New: func(model.Origin, model.SearchTolerances) (DataFetcher, error) {
		return nil, errors.New("radius must be positive")
	}})

	_, err := r.Open("bad", testOrigin, model.SearchTolerances{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source: open bad")
}

func TestDefaultRegistry_BuildsGeoNet(t *testing.T) {
	cfg := testConfig()
	r := NewDefaultRegistry(cfg, nil)
	assert.Equal(t, []string{geonet.Name}, r.Names())

	f, err := r.Open(geonet.Name, testOrigin, Tolerances(cfg.Search))
	require.NoError(t, err)
	gf, ok := f.(*geonet.Fetcher)
	require.True(t, ok)
	assert.Contains(t, gf.CatalogURL(), "https://example.test/csv?start=2016-11-13T10:32:56")
	assert.Equal(t, "ftp://ftp.example.test/Proc/2016/11_Nov/", gf.ArchiveURL(testOrigin.Time))
}

func TestTolerances(t *testing.T) {
	tol := Tolerances(testConfig().Search)
	assert.InDelta(t, 80.0, tol.RadiusKM, 1e-9)
	assert.Equal(t, 12500*time.Millisecond, tol.TimeWindow)
	assert.InDelta(t, 0.3, tol.MagnitudeWindow, 1e-9)
}

func TestGeoNetOptions(t *testing.T) {
	opts := GeoNetOptions(testConfig())
	assert.Equal(t, 30*time.Minute, opts.CatalogWindow)
	assert.Equal(t, "V1A", opts.Extension)
	assert.Equal(t, 2, opts.ParseWorkers)
	assert.Equal(t, 3, opts.Retry.MaxAttempts)
}

func newRunnerStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func kiksTraces() []waveform.Trace {
	start := testOrigin.Time
	return []waveform.Trace{
		{Network: "NZ", Station: "KIKS", Channel: "HN1", StartTime: start, SamplingRate: 200, Data: make([]float64, 10), Source: "/tmp/x/20161113_110256_KIKS_A.V1A"},
		{Network: "NZ", Station: "KIKS", Channel: "HN2", StartTime: start, SamplingRate: 200, Data: make([]float64, 10), Source: "/tmp/x/20161113_110256_KIKS_A.V1A"},
		{Network: "NZ", Station: "WTMC", Channel: "HNZ", StartTime: start, SamplingRate: 200, Data: make([]float64, 12), Source: "/tmp/x/20161113_110256_WTMC_B.V1A"},
	}
}

func TestRunner_CompleteRun(t *testing.T) {
	ctx := context.Background()
	st := newRunnerStore(t)
	m := monitoring.New()
	ev := model.CandidateEvent{ID: "2016p858000", Time: testOrigin.Time, Magnitude: 7.8}
	f := &fakeFetcher{events: []model.CandidateEvent{ev, {ID: "other"}}, traces: kiksTraces()}

	out, err := NewRunner(st, m).Run(ctx, f, false)
	require.NoError(t, err)
	require.NotNil(t, f.retrievedFor)
	assert.Equal(t, "2016p858000", f.retrievedFor.ID)

	assert.Equal(t, model.RunStatusComplete, out.Run.Status)
	assert.Equal(t, 2, out.Run.EventCount)
	assert.Equal(t, 2, out.Run.FileCount)
	assert.Equal(t, 3, out.Run.TraceCount)
	require.NotNil(t, out.Run.Event)
	assert.Equal(t, "2016p858000", out.Run.Event.ID)
	assert.Equal(t, 3, out.Collection.Len())

	records, err := st.ListTraces(ctx, out.Run.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "NZ.KIKS..HN1", records[0].TraceID)
	assert.Equal(t, "20161113_110256_KIKS_A.V1A", records[0].Source)
	assert.Equal(t, 12, records[2].Samples)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("complete")), 0.001)
}

func TestRunner_NoMatches(t *testing.T) {
	st := newRunnerStore(t)
	f := &fakeFetcher{}

	out, err := NewRunner(st, nil).Run(context.Background(), f, true)
	require.NoError(t, err)
	assert.Nil(t, f.retrievedFor)
	assert.Nil(t, out.Collection)
	assert.Equal(t, model.RunStatusComplete, out.Run.Status)
	assert.Zero(t, out.Run.EventCount)
	assert.Nil(t, out.Run.Event)
}

func TestRunner_MatchFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	st := newRunnerStore(t)
	f := &fakeFetcher{matchErr: errors.New("catalog unavailable")}

	_, err := NewRunner(st, nil).Run(ctx, f, true)
	require.Error(t, err)

	runs, err := st.ListRuns(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "catalog unavailable", runs[0].Error)
}

func TestRunner_RetrieveFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	st := newRunnerStore(t)
	m := monitoring.New()
	f := &fakeFetcher{
		events:      []model.CandidateEvent{{ID: "2016p858000"}},
		retrieveErr: geonet.ErrEventFolderNotFound,
	}

	_, err := NewRunner(st, m).Run(ctx, f, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, geonet.ErrEventFolderNotFound))

	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("failed")), 0.001)
}

func TestTraceRecords(t *testing.T) {
	assert.Nil(t, TraceRecords("run-1", nil))

	recs := TraceRecords("run-1", waveform.NewCollection([]waveform.Trace{{Station: "KIKS", Channel: "HN1"}}))
	require.Len(t, recs, 1)
	assert.Equal(t, "run-1", recs[0].RunID)
	assert.Equal(t, "", recs[0].Source)
}

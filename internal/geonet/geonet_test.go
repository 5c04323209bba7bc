package geonet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/gmprocess-cli/internal/fetcher"
	"github.com/sells-group/gmprocess-cli/internal/fetcher/ftptest"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/monitoring"
	"github.com/sells-group/gmprocess-cli/internal/resilience"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// kmPerDegree is the meridian arc length of one degree of latitude.
const kmPerDegree = 111.19492664455873

var testOrigin = model.NewOrigin(time.Date(2016, 11, 13, 11, 2, 56, 0, time.UTC), -42.0, 173.0, 15, 7.8)

// catalogRow renders a catalog row offset from testOrigin by km due north and dt seconds.
func catalogRow(id string, km, dt, depth, mag float64) string {
	t := testOrigin.Time.Add(time.Duration(dt * float64(time.Second)))
	lat := testOrigin.Latitude + km/kmPerDegree
	return fmt.Sprintf("%s, earthquake, %s, %.6f, %.6f, %.2f, %.1f",
		id, t.Format(time.RFC3339Nano), testOrigin.Longitude, lat, mag, depth)
}

const catalogHeader = "publicid,eventtype,origintime,longitude, latitude, magnitude, depth\n"

func catalogServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestFetcher(t *testing.T, opts Options, deps Deps) *Fetcher {
	t.Helper()
	if deps.HTTP == nil {
		deps.HTTP = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second})
	}
	if deps.FTP == nil {
		deps.FTP = fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: 5 * time.Second})
	}
	if deps.Reader == nil {
		deps.Reader = contentReader()
	}
	f, err := NewFetcher(testOrigin, model.DefaultTolerances(), opts, deps)
	require.NoError(t, err)
	return f
}

// contentReader returns one trace per file with the file content as station.
func contentReader() waveform.Reader {
	return waveform.ReaderFunc(func(path string) ([]waveform.Trace, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []waveform.Trace{{Station: string(data), Source: path}}, nil
	})
}

func TestNewFetcher_Validation(t *testing.T) {
	deps := Deps{
		HTTP:   fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}),
		FTP:    fetcher.NewFTPFetcher(fetcher.FTPOptions{}),
		Reader: waveform.V1AReader{},
	}

	_, err := NewFetcher(testOrigin, model.DefaultTolerances(), Options{}, Deps{FTP: deps.FTP, Reader: deps.Reader})
	assert.ErrorContains(t, err, "http fetcher is required")

	_, err = NewFetcher(testOrigin, model.SearchTolerances{TimeWindow: time.Second}, Options{}, deps)
	assert.ErrorContains(t, err, "must be positive")

	f, err := NewFetcher(testOrigin, model.DefaultTolerances(), Options{}, deps)
	require.NoError(t, err)
	assert.Equal(t, "geonet", f.Name())
	assert.Equal(t, time.Hour, f.opts.CatalogWindow)
	assert.Equal(t, "Vol1", f.opts.VolumePrefix)
	assert.Equal(t, "V1A", f.opts.Extension)
	assert.Equal(t, 1, f.opts.ParseWorkers)
	assert.Equal(t, 1, f.opts.Retry.MaxAttempts)
}

func TestCatalogURL_Window(t *testing.T) {
	f := newTestFetcher(t, Options{}, Deps{})
	got := f.CatalogURL()
	assert.True(t, strings.HasPrefix(got, "https://quakesearch.geonet.org.nz/csv?bbox="))
	assert.Contains(t, got, "startdate=2016-11-13T10:02:56")
	assert.Contains(t, got, "enddate=2016-11-13T12:02:56")
}

func TestMatchingEvents_QueriesWindowAroundOrigin(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(catalogHeader)) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?startdate=%s&enddate=%s", CatalogWindow: 30 * time.Minute}, Deps{})
	_, err := f.MatchingEvents(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "startdate=2016-11-13T10:32:56&enddate=2016-11-13T11:32:56", query)
}

func TestMatchingEvents_FiltersByRadiusAndTime(t *testing.T) {
	body := catalogHeader +
		catalogRow("inside", 0, 0, 15, 7.8) + "\n" +
		catalogRow("too-late", 50, 20, 15, 7.8) + "\n" +
		catalogRow("too-far", 150, 10, 15, 7.8) + "\n"
	srv, hits := catalogServer(t, body)

	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{})
	got, err := f.MatchingEvents(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0], 1)
	assert.Equal(t, "inside", got[0][0].ID)
	assert.InDelta(t, testOrigin.Latitude, got[0][0].Latitude, 1e-6)
	assert.Equal(t, int32(1), hits.Load())
}

func TestMatchingEvents_BoundaryIsInclusive(t *testing.T) {
	body := catalogHeader +
		catalogRow("edge", 99.999, -16, 15, 7.8) + "\n"
	srv, _ := catalogServer(t, body)

	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{})
	got, err := f.MatchingEvents(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got[0], 1)
}

func TestMatchingEvents_Solve(t *testing.T) {
	body := catalogHeader +
		catalogRow("close-but-late", 0, 10, 15, 7.8) + "\n" +
		catalogRow("best", 20, 2, 15, 7.8) + "\n"
	srv, _ := catalogServer(t, body)
	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{})

	all, err := f.MatchingEvents(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, all[0], 2)
	assert.Equal(t, "close-but-late", all[0][0].ID)

	solved, err := f.MatchingEvents(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, solved, 1)
	require.Len(t, solved[0], 1)
	assert.Equal(t, "best", solved[0][0].ID)
}

func TestMatchingEvents_NoMatches(t *testing.T) {
	srv, _ := catalogServer(t, catalogHeader+catalogRow("far", 500, 0, 15, 7.8)+"\n")
	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{})

	got, err := f.MatchingEvents(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestMatchingEvents_EmptyBody(t *testing.T) {
	srv, _ := catalogServer(t, "")
	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{})

	got, err := f.MatchingEvents(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestMatchingEvents_MissingColumn(t *testing.T) {
	srv, _ := catalogServer(t, "publicid,origintime,latitude,longitude,depth\nx,2016-11-13T11:02:56Z,-42,173,10\n")
	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{})

	_, err := f.MatchingEvents(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magnitude")
}

func TestMatchingEvents_BadNumber(t *testing.T) {
	srv, _ := catalogServer(t, catalogHeader+"x, earthquake, 2016-11-13T11:02:56Z, 173, north, 7.8, 10\n")
	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{})

	_, err := f.MatchingEvents(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad latitude")
}

func TestMatchingEvents_TransportFailureNoRetryByDefault(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	metrics := monitoring.New()
	f := newTestFetcher(t, Options{CatalogURL: srv.URL + "/csv?s=%s&e=%s"}, Deps{Metrics: metrics})

	_, err := f.MatchingEvents(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.CatalogQueries.WithLabelValues(Name, "error")), 0.001)
}

func TestMatchingEvents_RetriesTransientWhenConfigured(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(catalogHeader + catalogRow("ok", 0, 0, 15, 7.8) + "\n")) //nolint:errcheck
	}))
	defer srv.Close()

	opts := Options{
		CatalogURL: srv.URL + "/csv?s=%s&e=%s",
		Retry:      resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond},
	}
	f := newTestFetcher(t, opts, Deps{})

	got, err := f.MatchingEvents(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, got[0], 1)
	assert.Equal(t, int32(2), hits.Load())
}

// archive builds the FTP tree for testOrigin's event folder.
func archive(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for p, content := range files {
		out["/strong/processed/Proc/2016/11_Nov/2016-11-13_110256/"+p] = content
	}
	return out
}

const archiveTemplate = "/strong/processed/Proc/[YEAR]/[MONTH]/"

func TestArchiveURLAndFolder(t *testing.T) {
	f := newTestFetcher(t, Options{}, Deps{})
	ts := time.Date(2016, 1, 5, 3, 4, 5, 500_000_000, time.UTC)
	assert.Equal(t, "ftp://ftp.geonet.org.nz/strong/processed/Proc/2016/01_Jan/", f.ArchiveURL(ts))
	assert.Equal(t, "2016-01-05_030405", EventFolder(ts))
}

func TestRetrieveData_WalksVolumesAndDeduplicates(t *testing.T) {
	srv := ftptest.NewServer(t, archive(map[string]string{
		"Vol1a/data/A.V1A":     "A",
		"Vol1a/data/B.V1A":     "B",
		"Vol1a/data/list.txt":  "ignored",
		"Vol1b/data/A.V1A":     "A-again",
		"Vol1c/readme.txt":     "no data dir",
		"Vol2/data/C.V1A":      "other volume",
		"Vol1d/data/D.v1a":     "D",
		"Vol1d/data/sub/E.V1A": "nested",
	}))
	defer srv.Close()

	var mu sync.Mutex
	var parsed []string
	reader := waveform.ReaderFunc(func(path string) ([]waveform.Trace, error) {
		mu.Lock()
		parsed = append(parsed, filepath.Base(path))
		mu.Unlock()
		return contentReader().Read(path)
	})

	metrics := monitoring.New()
	f := newTestFetcher(t, Options{ArchiveURL: srv.URL(archiveTemplate)}, Deps{Reader: reader, Metrics: metrics})

	ev := model.CandidateEvent{Time: testOrigin.Time}
	coll, err := f.RetrieveData(context.Background(), ev)
	require.NoError(t, err)

	require.Equal(t, 3, coll.Len())
	stations := make([]string, 0, coll.Len())
	for _, tr := range coll.Traces() {
		stations = append(stations, tr.Station)
	}
	assert.Equal(t, []string{"A", "B", "D"}, stations)
	assert.ElementsMatch(t, []string{"A.V1A", "B.V1A", "D.v1a"}, parsed)

	base := "/strong/processed/Proc/2016/11_Nov/2016-11-13_110256/"
	assert.Equal(t, []string{
		base + "Vol1a/data/A.V1A",
		base + "Vol1a/data/B.V1A",
		base + "Vol1d/data/D.v1a",
	}, srv.Retrieved())

	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.FilesDownloaded.WithLabelValues(Name)), 0.001)
	assert.InDelta(t, 3.0, testutil.ToFloat64(metrics.TracesParsed.WithLabelValues(Name)), 0.001)
}

func TestHasExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"20161113_110256_WTMC_20.V1A", true},
		{"lower.v1a", true},
		{"20161113_WTMCV1A", true},
		{"C.V2A", false},
		{"V1A.txt", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasExtension(tt.name, "V1A"))
		})
	}
}

func TestRetrieveData_ExtensionWithoutDot(t *testing.T) {
	srv := ftptest.NewServer(t, archive(map[string]string{
		"Vol1a/data/WTMCV1A":  "W",
		"Vol1a/data/WTMC.V2A": "skip",
	}))
	defer srv.Close()

	f := newTestFetcher(t, Options{ArchiveURL: srv.URL(archiveTemplate)}, Deps{Reader: contentReader()})

	coll, err := f.RetrieveData(context.Background(), model.CandidateEvent{Time: testOrigin.Time})
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())
	assert.Equal(t, "W", coll.Traces()[0].Station)
	assert.Equal(t, []string{
		"/strong/processed/Proc/2016/11_Nov/2016-11-13_110256/Vol1a/data/WTMCV1A",
	}, srv.Retrieved())
}

func TestRetrieveData_MissingEventFolder(t *testing.T) {
	srv := ftptest.NewServer(t, archive(map[string]string{"Vol1a/data/A.V1A": "A"}))
	defer srv.Close()

	f := newTestFetcher(t, Options{ArchiveURL: srv.URL(archiveTemplate)}, Deps{})

	ev := model.CandidateEvent{Time: testOrigin.Time.Add(time.Minute)}
	_, err := f.RetrieveData(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEventFolderNotFound))
	assert.Contains(t, err.Error(), `could not find an FTP data folder called "`+srv.URL("/strong/processed/Proc/2016/11_Nov/2016-11-13_110356")+`"`)
	assert.Empty(t, srv.Retrieved())
}

func TestRetrieveData_MissingMonth(t *testing.T) {
	srv := ftptest.NewServer(t, archive(map[string]string{"Vol1a/data/A.V1A": "A"}))
	defer srv.Close()

	f := newTestFetcher(t, Options{ArchiveURL: srv.URL(archiveTemplate)}, Deps{})

	_, err := f.RetrieveData(context.Background(), model.CandidateEvent{Time: testOrigin.Time.AddDate(0, 1, 0)})
	require.Error(t, err)

	var re *RetrievalError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "/strong/processed/Proc/2016/12_Dec/", re.Path)
	assert.False(t, errors.Is(err, ErrEventFolderNotFound))
}

func TestRetrieveData_ScratchDirRemoved(t *testing.T) {
	srv := ftptest.NewServer(t, archive(map[string]string{"Vol1a/data/A.V1A": "A"}))
	defer srv.Close()

	f := newTestFetcher(t, Options{ArchiveURL: srv.URL(archiveTemplate)}, Deps{})

	coll, err := f.RetrieveData(context.Background(), model.CandidateEvent{Time: testOrigin.Time})
	require.NoError(t, err)
	require.Equal(t, 1, coll.Len())

	_, statErr := os.Stat(coll.Traces()[0].Source)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRetrieveData_RawDirKept(t *testing.T) {
	srv := ftptest.NewServer(t, archive(map[string]string{"Vol1a/data/A.V1A": "A"}))
	defer srv.Close()

	raw := filepath.Join(t.TempDir(), "raw")
	f := newTestFetcher(t, Options{ArchiveURL: srv.URL(archiveTemplate), RawDir: raw}, Deps{})

	_, err := f.RetrieveData(context.Background(), model.CandidateEvent{Time: testOrigin.Time})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(raw, "A.V1A"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))
}

func TestRetrieveData_ParseErrorAbortsBatch(t *testing.T) {
	srv := ftptest.NewServer(t, archive(map[string]string{
		"Vol1a/data/A.V1A": "A",
		"Vol1a/data/B.V1A": "B",
	}))
	defer srv.Close()

	reader := waveform.ReaderFunc(func(path string) ([]waveform.Trace, error) {
		if filepath.Base(path) == "B.V1A" {
			return nil, errors.New("corrupt header")
		}
		return contentReader().Read(path)
	})
	metrics := monitoring.New()
	f := newTestFetcher(t, Options{ArchiveURL: srv.URL(archiveTemplate), ParseWorkers: 4}, Deps{Reader: reader, Metrics: metrics})

	_, err := f.RetrieveData(context.Background(), model.CandidateEvent{Time: testOrigin.Time})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "B.V1A")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RetrievalErrors.WithLabelValues(Name, "parse")), 0.001)
}

func TestRetrieveData_ConnectFailure(t *testing.T) {
	srv := ftptest.NewServer(t, nil)
	url := srv.URL(archiveTemplate)
	srv.Close()

	f := newTestFetcher(t, Options{ArchiveURL: url}, Deps{})
	_, err := f.RetrieveData(context.Background(), model.CandidateEvent{Time: testOrigin.Time})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to archive")
}

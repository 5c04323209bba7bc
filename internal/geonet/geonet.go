// Package geonet matches origins against the GeoNet (New Zealand) event
// catalog and retrieves strong-motion records from the GeoNet FTP archive.
package geonet

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmprocess-cli/internal/fetcher"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/monitoring"
	"github.com/sells-group/gmprocess-cli/internal/resilience"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

// Name identifies this data center in registries and run logs.
const Name = "geonet"

const (
	// CatalogURLTemplate takes the start and end of the query window.
	CatalogURLTemplate = "https://quakesearch.geonet.org.nz/csv?bbox=163.95996,-49.18170,182.63672,-32.28713&startdate=%s&enddate=%s"
	// ArchiveURLTemplate has [YEAR] and [MONTH] placeholders.
	ArchiveURLTemplate = "ftp://ftp.geonet.org.nz/strong/processed/Proc/[YEAR]/[MONTH]/"

	catalogTimeFormat = "2006-01-02T15:04:05"
	folderTimeFormat  = "2006-01-02_150405"
	monthFormat       = "01_Jan"

	defaultCatalogWindow = time.Hour
	defaultVolumePrefix  = "Vol1"
	defaultDataDir       = "data"
	defaultExtension     = "V1A"
)

// SessionDialer opens a logged-in FTP session to the host named in rawURL.
type SessionDialer interface {
	Dial(ctx context.Context, rawURL string) (fetcher.FTPSession, error)
}

// Options configures catalog and archive access. Zero values take the GeoNet defaults.
type Options struct {
	CatalogURL    string
	ArchiveURL    string
	CatalogWindow time.Duration
	VolumePrefix  string
	DataDir       string
	Extension     string

	// RawDir keeps downloaded files. When empty a scratch directory is used
	// and removed before RetrieveData returns.
	RawDir string

	// ParseWorkers bounds concurrent file parsing. Default 1.
	ParseWorkers int

	// Retry wraps the catalog query. MaxAttempts 1 disables retries.
	Retry resilience.RetryConfig
}

func (o Options) withDefaults() Options {
	if o.CatalogURL == "" {
		o.CatalogURL = CatalogURLTemplate
	}
	if o.ArchiveURL == "" {
		o.ArchiveURL = ArchiveURLTemplate
	}
	if o.CatalogWindow <= 0 {
		o.CatalogWindow = defaultCatalogWindow
	}
	if o.VolumePrefix == "" {
		o.VolumePrefix = defaultVolumePrefix
	}
	if o.DataDir == "" {
		o.DataDir = defaultDataDir
	}
	if o.Extension == "" {
		o.Extension = defaultExtension
	}
	if o.ParseWorkers <= 0 {
		o.ParseWorkers = 1
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry.MaxAttempts = 1
	}
	return o
}

// Deps holds the collaborators a Fetcher calls into.
type Deps struct {
	HTTP    fetcher.Fetcher
	FTP     SessionDialer
	Reader  waveform.Reader
	Metrics *monitoring.Metrics
}

// Fetcher matches one origin against the GeoNet catalog and retrieves its records.
type Fetcher struct {
	origin model.Origin
	tol    model.SearchTolerances
	opts   Options
	deps   Deps
}

// NewFetcher creates a Fetcher for origin. HTTP, FTP and Reader are required.
func NewFetcher(origin model.Origin, tol model.SearchTolerances, opts Options, deps Deps) (*Fetcher, error) {
	if deps.HTTP == nil {
		return nil, eris.New("geonet: http fetcher is required")
	}
	if deps.FTP == nil {
		return nil, eris.New("geonet: ftp dialer is required")
	}
	if deps.Reader == nil {
		return nil, eris.New("geonet: waveform reader is required")
	}
	if tol.RadiusKM <= 0 || tol.TimeWindow <= 0 {
		return nil, eris.Errorf("geonet: radius and time window must be positive (radius=%g, dt=%s)", tol.RadiusKM, tol.TimeWindow)
	}
	origin.Time = origin.Time.UTC()
	return &Fetcher{origin: origin, tol: tol, opts: opts.withDefaults(), deps: deps}, nil
}

// Name returns the data center name.
func (f *Fetcher) Name() string {
	return Name
}

// Origin returns the target origin.
func (f *Fetcher) Origin() model.Origin {
	return f.origin
}

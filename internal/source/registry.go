package source

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmprocess-cli/internal/config"
	"github.com/sells-group/gmprocess-cli/internal/fetcher"
	"github.com/sells-group/gmprocess-cli/internal/geonet"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/monitoring"
	"github.com/sells-group/gmprocess-cli/internal/resilience"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

// Constructor builds a DataFetcher for one origin.
type Constructor func(origin model.Origin, tol model.SearchTolerances) (DataFetcher, error)

// Agency is a registered data center.
type Agency struct {
	Name string
	New  Constructor
}

// Registry maps agency names to fetcher constructors.
type Registry struct {
	agencies map[string]Agency
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agencies: make(map[string]Agency)}
}

// NewDefaultRegistry creates a registry with every supported data center
// configured from cfg.
func NewDefaultRegistry(cfg *config.Config, metrics *monitoring.Metrics) *Registry {
	r := NewRegistry()
	deps := GeoNetDeps(cfg, metrics)
	opts := GeoNetOptions(cfg)
	r.Register(Agency{
		Name: geonet.Name,
		New: func(origin model.Origin, tol model.SearchTolerances) (DataFetcher, error) {
			return geonet.NewFetcher(origin, tol, opts, deps)
		},
	})
	return r
}

// Register adds an agency. A later registration under the same name replaces
// the constructor but keeps the original position.
func (r *Registry) Register(a Agency) {
	if _, ok := r.agencies[a.Name]; !ok {
		r.order = append(r.order, a.Name)
	}
	r.agencies[a.Name] = a
}

// Get returns an agency by name.
func (r *Registry) Get(name string) (Agency, error) {
	a, ok := r.agencies[name]
	if !ok {
		return Agency{}, eris.Errorf("source: unknown agency %q (valid: %v)", name, r.Names())
	}
	return a, nil
}

// All returns all agencies in registration order.
func (r *Registry) All() []Agency {
	out := make([]Agency, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agencies[name])
	}
	return out
}

// Names returns the agency names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Open builds the named agency's fetcher for origin.
func (r *Registry) Open(name string, origin model.Origin, tol model.SearchTolerances) (DataFetcher, error) {
	a, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	f, err := a.New(origin, tol)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", name)
	}
	return f, nil
}

// Tolerances converts the search config to SearchTolerances.
func Tolerances(cfg config.SearchConfig) model.SearchTolerances {
	return model.SearchTolerances{
		RadiusKM:        cfg.RadiusKM,
		TimeWindow:      time.Duration(cfg.TimeWindowSecs * float64(time.Second)),
		DepthWindowKM:   cfg.DepthWindowKM,
		MagnitudeWindow: cfg.MagnitudeWindow,
	}
}

// GeoNetOptions converts the geonet config to fetcher options.
func GeoNetOptions(cfg *config.Config) geonet.Options {
	g := cfg.GeoNet
	return geonet.Options{
		CatalogURL:    g.CatalogURL,
		ArchiveURL:    g.ArchiveURL,
		CatalogWindow: time.Duration(g.CatalogWindowSecs) * time.Second,
		VolumePrefix:  g.VolumePrefix,
		Extension:     g.FileExtension,
		RawDir:        g.RawDir,
		ParseWorkers:  g.ParseWorkers,
		Retry:         resilience.DefaultRetryConfig().WithAttempts(g.MaxAttempts),
	}
}

// GeoNetDeps builds the HTTP, FTP and V1A collaborators from cfg.
func GeoNetDeps(cfg *config.Config, metrics *monitoring.Metrics) geonet.Deps {
	g := cfg.GeoNet
	return geonet.Deps{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:    g.UserAgent,
			Timeout:      time.Duration(g.HTTPTimeoutSecs) * time.Second,
			RateLimiters: fetcher.DefaultRateLimiters(),
		}),
		FTP:     fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: time.Duration(g.FTPTimeoutSecs) * time.Second}),
		Reader:  waveform.V1AReader{},
		Metrics: metrics,
	}
}

package geonet

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gmprocess-cli/internal/fetcher"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/resilience"
)

// Catalog columns. publicid is optional.
const (
	colPublicID   = "publicid"
	colOriginTime = "origintime"
	colLatitude   = "latitude"
	colLongitude  = "longitude"
	colDepth      = "depth"
	colMagnitude  = "magnitude"
)

// catalogTimeLayouts are tried in order when parsing origintime.
var catalogTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// CatalogURL returns the catalog query URL for the window around the origin.
func (f *Fetcher) CatalogURL() string {
	start := f.origin.Time.Add(-f.opts.CatalogWindow)
	end := f.origin.Time.Add(f.opts.CatalogWindow)
	return fmt.Sprintf(f.opts.CatalogURL, start.Format(catalogTimeFormat), end.Format(catalogTimeFormat))
}

// MatchingEvents queries the catalog for events near the origin. Rows within
// the radius and the time window are kept in catalog order. When solve is set
// and more than one row survives, Solve picks the single best match.
//
// The result always has one element; an empty inner slice means no match.
func (f *Fetcher) MatchingEvents(ctx context.Context, solve bool) ([][]model.CandidateEvent, error) {
	log := zap.L().With(zap.String("agency", Name), zap.Time("origin_time", f.origin.Time))

	url := f.CatalogURL()
	log.Debug("geonet: querying catalog", zap.String("url", url))

	retry := f.opts.Retry
	retry.OnRetry = resilience.RetryLogger(Name, "catalog query")
	rows, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.CandidateEvent, error) {
		return f.queryCatalog(ctx, url)
	})
	f.deps.Metrics.ObserveCatalogQuery(Name, err)
	if err != nil {
		return nil, eris.Wrap(err, "geonet: catalog query")
	}

	matches := f.filter(rows)
	log.Info("geonet: catalog matches",
		zap.Int("rows", len(rows)),
		zap.Int("matches", len(matches)),
	)

	if solve && len(matches) > 1 {
		best := Solve(f.origin, matches, f.tol)
		matches = []model.CandidateEvent{best}
	}
	f.deps.Metrics.AddMatchedEvents(Name, len(matches))

	return [][]model.CandidateEvent{matches}, nil
}

func (f *Fetcher) queryCatalog(ctx context.Context, url string) ([]model.CandidateEvent, error) {
	body, err := f.deps.HTTP.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	header, rows, err := fetcher.ReadCSV(ctx, body, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "geonet: read catalog csv")
	}
	if len(rows) == 0 && len(header) == 0 {
		return nil, nil
	}
	return parseCatalog(header, rows)
}

// parseCatalog converts catalog rows into candidate events.
func parseCatalog(header fetcher.Header, rows [][]string) ([]model.CandidateEvent, error) {
	idx, err := header.Require(colOriginTime, colLatitude, colLongitude, colDepth, colMagnitude)
	if err != nil {
		return nil, eris.Wrap(err, "geonet: catalog")
	}
	iTime, iLat, iLon, iDepth, iMag := idx[0], idx[1], idx[2], idx[3], idx[4]
	iID := header.Index(colPublicID)

	events := make([]model.CandidateEvent, 0, len(rows))
	for n, row := range rows {
		line := n + 2
		field := func(i int) (string, error) {
			if i >= len(row) {
				return "", eris.Errorf("geonet: catalog line %d: expected at least %d fields, got %d", line, i+1, len(row))
			}
			return row[i], nil
		}
		number := func(i int, name string) (float64, error) {
			s, err := field(i)
			if err != nil {
				return 0, err
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return 0, eris.Wrapf(err, "geonet: catalog line %d: bad %s %q", line, name, s)
			}
			return v, nil
		}

		var ev model.CandidateEvent
		ts, err := field(iTime)
		if err != nil {
			return nil, err
		}
		if ev.Time, err = parseCatalogTime(ts); err != nil {
			return nil, eris.Wrapf(err, "geonet: catalog line %d", line)
		}
		if ev.Latitude, err = number(iLat, colLatitude); err != nil {
			return nil, err
		}
		if ev.Longitude, err = number(iLon, colLongitude); err != nil {
			return nil, err
		}
		if ev.Depth, err = number(iDepth, colDepth); err != nil {
			return nil, err
		}
		if ev.Magnitude, err = number(iMag, colMagnitude); err != nil {
			return nil, err
		}
		if iID >= 0 && iID < len(row) {
			ev.ID = row[iID]
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseCatalogTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range catalogTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("unparseable origintime %q", s)
}

// filter keeps events within both the radius and the time window.
func (f *Fetcher) filter(events []model.CandidateEvent) []model.CandidateEvent {
	out := make([]model.CandidateEvent, 0, len(events))
	for _, ev := range events {
		dist := f.origin.DistanceKM(ev)
		dt := f.origin.TimeOffset(ev)
		if dist <= f.tol.RadiusKM && dt <= f.tol.TimeWindow {
			out = append(out, ev)
		}
	}
	return out
}

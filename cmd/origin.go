package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/source"
)

// addOriginFlags registers the origin and tolerance flags shared by events
// and fetch.
func addOriginFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("time", "", "origin time, RFC 3339 (required)")
	f.Float64("lat", 0, "origin latitude in degrees (required)")
	f.Float64("lon", 0, "origin longitude in degrees (required)")
	f.Float64("depth", 0, "origin depth in km")
	f.Float64("mag", 0, "origin magnitude")
	f.Float64("radius", 0, "search radius in km (default from config)")
	f.Float64("dt", 0, "search time window in seconds (default from config)")
	f.String("agency", "geonet", "data center to query")
	f.Bool("no-solve", false, "return every matching event instead of the best one")
	_ = cmd.MarkFlagRequired("time")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
}

func originFromFlags(cmd *cobra.Command) (model.Origin, model.SearchTolerances, error) {
	f := cmd.Flags()
	tol := source.Tolerances(cfg.Search)

	raw, _ := f.GetString("time")
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return model.Origin{}, tol, eris.Wrapf(err, "parse --time %q", raw)
	}
	lat, _ := f.GetFloat64("lat")
	lon, _ := f.GetFloat64("lon")
	depth, _ := f.GetFloat64("depth")
	mag, _ := f.GetFloat64("mag")

	if f.Changed("radius") {
		tol.RadiusKM, _ = f.GetFloat64("radius")
	}
	if f.Changed("dt") {
		secs, _ := f.GetFloat64("dt")
		tol.TimeWindow = time.Duration(secs * float64(time.Second))
	}
	return model.NewOrigin(t, lat, lon, depth, mag), tol, nil
}

package model

import (
	"time"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/gmprocess-cli/internal/geodetic"
)

// Origin is the target event used to search a catalog for matching records.
type Origin struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Depth     float64   `json:"depth"`
	Magnitude float64   `json:"magnitude"`
}

// NewOrigin returns an Origin with its time normalized to UTC.
func NewOrigin(t time.Time, lat, lon, depth, mag float64) Origin {
	return Origin{
		Time:      t.UTC(),
		Latitude:  lat,
		Longitude: lon,
		Depth:     depth,
		Magnitude: mag,
	}
}

// Point returns the origin epicenter as an XY (lon, lat) point.
func (o Origin) Point() *geom.Point {
	return geodetic.Point(o.Longitude, o.Latitude)
}

// SearchTolerances bounds how far a catalog event may be from the origin.
type SearchTolerances struct {
	RadiusKM        float64       `json:"radius_km"`
	TimeWindow      time.Duration `json:"time_window"`
	DepthWindowKM   float64       `json:"depth_window_km"`
	MagnitudeWindow float64       `json:"magnitude_window"`
}

// DefaultTolerances returns 100 km, 16 s, 30 km and 0.3 magnitude units.
func DefaultTolerances() SearchTolerances {
	return SearchTolerances{
		RadiusKM:        100,
		TimeWindow:      16 * time.Second,
		DepthWindowKM:   30,
		MagnitudeWindow: 0.3,
	}
}

// CandidateEvent is one catalog row that satisfied the search tolerances.
type CandidateEvent struct {
	ID        string    `json:"id,omitempty"`
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Depth     float64   `json:"depth"`
	Magnitude float64   `json:"mag"`
}

// Point returns the event epicenter as an XY (lon, lat) point.
func (e CandidateEvent) Point() *geom.Point {
	return geodetic.Point(e.Longitude, e.Latitude)
}

// DistanceKM returns the epicentral distance from the origin to e.
func (o Origin) DistanceKM(e CandidateEvent) float64 {
	return geodetic.Distance(o.Point(), e.Point())
}

// TimeOffset returns the absolute difference between the origin and event times.
func (o Origin) TimeOffset(e CandidateEvent) time.Duration {
	d := e.Time.Sub(o.Time)
	if d < 0 {
		return -d
	}
	return d
}

// Package geodetic computes great-circle distances between geographic points.
package geodetic

import (
	"math"

	"github.com/twpayne/go-geom"
)

// EarthRadiusKM is the mean Earth radius used for all distance calculations.
const EarthRadiusKM = 6371.0

// Distance returns the great-circle distance in km between two XY points,
// where X is longitude and Y is latitude in degrees.
func Distance(a, b *geom.Point) float64 {
	return DistanceKM(a.X(), a.Y(), b.X(), b.Y())
}

// DistanceKM returns the haversine distance in km between (lon1, lat1) and (lon2, lat2).
func DistanceKM(lon1, lat1, lon2, lat2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	h := math.Pow(math.Sin(dPhi/2), 2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLambda/2), 2)
	// Rounding can push h a hair above 1 for antipodal points.
	h = math.Min(1, h)
	return 2 * EarthRadiusKM * math.Asin(math.Sqrt(h))
}

// Point builds an XY point with SRID 4326 from longitude and latitude.
func Point(lon, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
}

package geodetic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKM(t *testing.T) {
	// Wellington to Christchurch.
	d := DistanceKM(174.7762, -41.2865, 172.6362, -43.5321)
	assert.InDelta(t, 304, d, 3)

	assert.InDelta(t, 0, DistanceKM(174.0, -41.0, 174.0, -41.0), 0.001)
}

func TestDistanceKM_OneDegreeLatitude(t *testing.T) {
	d := DistanceKM(0, 0, 0, 1)
	assert.InDelta(t, 111.19, d, 0.01)
}

func TestDistanceKM_Antipodal(t *testing.T) {
	d := DistanceKM(0, 0, 180, 0)
	assert.InDelta(t, 20015.09, d, 0.1)
}

func TestDistance_Points(t *testing.T) {
	a := Point(174.7762, -41.2865)
	b := Point(172.6362, -43.5321)
	assert.InDelta(t, DistanceKM(174.7762, -41.2865, 172.6362, -43.5321), Distance(a, b), 1e-9)
	assert.Equal(t, 4326, a.SRID())
}

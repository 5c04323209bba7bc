package geonet

import (
	"math"

	"github.com/sells-group/gmprocess-cli/internal/model"
)

// Score returns the normalized distance between origin and ev: each of the
// time, epicentral distance, depth and magnitude differences divided by its
// tolerance, combined as a Euclidean norm. Zero tolerances drop their term.
func Score(origin model.Origin, ev model.CandidateEvent, tol model.SearchTolerances) float64 {
	terms := [4]float64{
		ratio(origin.TimeOffset(ev).Seconds(), tol.TimeWindow.Seconds()),
		ratio(origin.DistanceKM(ev), tol.RadiusKM),
		ratio(ev.Depth-origin.Depth, tol.DepthWindowKM),
		ratio(ev.Magnitude-origin.Magnitude, tol.MagnitudeWindow),
	}
	var sum float64
	for _, t := range terms {
		sum += t * t
	}
	return math.Sqrt(sum)
}

func ratio(diff, tol float64) float64 {
	if tol <= 0 {
		return 0
	}
	return diff / tol
}

// Solve returns the event with the lowest Score. Ties keep the earlier event.
// events must not be empty.
func Solve(origin model.Origin, events []model.CandidateEvent, tol model.SearchTolerances) model.CandidateEvent {
	best := 0
	bestScore := Score(origin, events[0], tol)
	for i := 1; i < len(events); i++ {
		if s := Score(origin, events[i], tol); s < bestScore {
			best, bestScore = i, s
		}
	}
	return events[best]
}

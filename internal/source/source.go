// Package source registers the data center fetchers and runs them against
// the retrieval log.
package source

import (
	"context"

	"github.com/sells-group/gmprocess-cli/internal/geonet"
	"github.com/sells-group/gmprocess-cli/internal/model"
	"github.com/sells-group/gmprocess-cli/internal/waveform"
)

// DataFetcher matches an origin against one data center and retrieves the
// records of a matched event.
type DataFetcher interface {
	// Name returns the agency name.
	Name() string

	// Origin returns the target origin.
	Origin() model.Origin

	// MatchingEvents returns the catalog events near the origin. The outer
	// slice has one element per catalog queried.
	MatchingEvents(ctx context.Context, solve bool) ([][]model.CandidateEvent, error)

	// RetrieveData downloads and parses the records for ev.
	RetrieveData(ctx context.Context, ev model.CandidateEvent) (*waveform.Collection, error)
}

var _ DataFetcher = (*geonet.Fetcher)(nil)

// Flatten joins the per-catalog results of MatchingEvents.
func Flatten(groups [][]model.CandidateEvent) []model.CandidateEvent {
	var out []model.CandidateEvent
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

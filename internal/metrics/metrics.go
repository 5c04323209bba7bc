// Package metrics defines the inputs and results shared by the component
// combination and reduction routines.
package metrics

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// CombinedKey is the result key for a value combined across channels.
const CombinedKey = ""

// Input is the data a combiner operates on. It is either a TimeDomainPair or a
// FrequencyDomainSeries.
type Input interface {
	domain() string
}

// TimeDomainPair holds the two horizontal components of a time series.
type TimeDomainPair struct {
	H1 []float64 `json:"h1"`
	H2 []float64 `json:"h2"`
}

func (TimeDomainPair) domain() string { return "time" }

// Validate checks that both components are present and of equal length.
func (p TimeDomainPair) Validate() error {
	if len(p.H1) == 0 || len(p.H2) == 0 {
		return eris.New("metrics: time domain pair needs two non-empty components")
	}
	if len(p.H1) != len(p.H2) {
		return eris.Errorf("metrics: component lengths differ: h1=%d h2=%d", len(p.H1), len(p.H2))
	}
	return nil
}

// Channel is one named spectral trace.
type Channel struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// FrequencyDomainSeries holds named channel spectra on a shared frequency axis.
type FrequencyDomainSeries struct {
	Freqs    []float64 `json:"freqs"`
	Channels []Channel `json:"channels"`
}

func (FrequencyDomainSeries) domain() string { return "frequency" }

// Validate checks that there is at least one channel and every channel
// matches the frequency axis.
func (s FrequencyDomainSeries) Validate() error {
	if len(s.Channels) == 0 {
		return eris.New("metrics: frequency series has no channels")
	}
	for _, ch := range s.Channels {
		if len(ch.Values) != len(s.Freqs) {
			return eris.Errorf("metrics: channel %q has %d values but %d frequencies", ch.Name, len(ch.Values), len(s.Freqs))
		}
	}
	return nil
}

// Result maps a channel name, or CombinedKey, to its values. Freqs is set
// when the input was a FrequencyDomainSeries.
type Result struct {
	Values map[string][]float64 `json:"values"`
	Freqs  []float64            `json:"freqs,omitempty"`
}

// Combined returns the combined values.
func (r Result) Combined() []float64 {
	return r.Values[CombinedKey]
}

// PGMError reports an invalid ground-motion metric configuration.
type PGMError struct {
	Metric string
	Field  string
	Reason string
}

func (e *PGMError) Error() string {
	return fmt.Sprintf("%s: the %s value %s", e.Metric, e.Field, e.Reason)
}

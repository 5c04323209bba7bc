// Package waveform holds parsed strong-motion traces and the readers that produce them.
package waveform

import (
	"sort"
	"time"
)

// Trace is one channel of a strong-motion record.
type Trace struct {
	Network      string    `json:"network"`
	Station      string    `json:"station"`
	Location     string    `json:"location"`
	Channel      string    `json:"channel"`
	StartTime    time.Time `json:"start_time"`
	SamplingRate float64   `json:"sampling_rate"`
	Data         []float64 `json:"-"`
	Units        string    `json:"units,omitempty"`
	Source       string    `json:"source,omitempty"`
}

// ID returns the NET.STA.LOC.CHA identifier of the trace.
func (t Trace) ID() string {
	return t.Network + "." + t.Station + "." + t.Location + "." + t.Channel
}

// Len returns the number of samples.
func (t Trace) Len() int {
	return len(t.Data)
}

// Duration returns the time spanned by the samples.
func (t Trace) Duration() time.Duration {
	if t.SamplingRate <= 0 || len(t.Data) < 2 {
		return 0
	}
	secs := float64(len(t.Data)-1) / t.SamplingRate
	return time.Duration(secs * float64(time.Second))
}

// Collection is an ordered set of traces returned by a data retrieval.
type Collection struct {
	traces []Trace
}

// NewCollection builds a collection that preserves the order of traces.
func NewCollection(traces []Trace) *Collection {
	out := make([]Trace, len(traces))
	copy(out, traces)
	return &Collection{traces: out}
}

// Len returns the number of traces.
func (c *Collection) Len() int {
	return len(c.traces)
}

// Traces returns a copy of the traces in insertion order.
func (c *Collection) Traces() []Trace {
	out := make([]Trace, len(c.traces))
	copy(out, c.traces)
	return out
}

// Stations returns the sorted, de-duplicated station codes.
func (c *Collection) Stations() []string {
	seen := make(map[string]bool)
	var stations []string
	for _, tr := range c.traces {
		if seen[tr.Station] {
			continue
		}
		seen[tr.Station] = true
		stations = append(stations, tr.Station)
	}
	sort.Strings(stations)
	return stations
}

// ByStation returns the traces recorded at station, in insertion order.
func (c *Collection) ByStation(station string) []Trace {
	var out []Trace
	for _, tr := range c.traces {
		if tr.Station == station {
			out = append(out, tr)
		}
	}
	return out
}

// Package reduction reduces spectra to scalar picks.
package reduction

import (
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/gmprocess-cli/internal/metrics"
	"github.com/sells-group/gmprocess-cli/internal/smoothing"
)

const smoothSelectName = "SmoothSelect"

// SmoothSelectParams configures a SmoothSelect. All fields are required.
type SmoothSelectParams struct {
	Period    *float64 `json:"period"`
	Bandwidth *float64 `json:"bandwidth"`
	Smoothing string   `json:"smoothing"`
}

type smoothFunc func(spectrum, freqs, targetFreqs []float64, bandwidth float64) ([]float64, error)

var smoothers = map[string]smoothFunc{
	smoothing.KonnoOhmachiName: smoothing.KonnoOhmachi,
}

// SmoothSelect smooths each channel spectrum and picks the value at the
// frequency 1/period.
type SmoothSelect struct {
	period    float64
	bandwidth float64
	smoothing string
	smooth    smoothFunc
}

// NewSmoothSelect validates p. A missing field yields a *metrics.PGMError
// naming it.
func NewSmoothSelect(p SmoothSelectParams) (*SmoothSelect, error) {
	if p.Period == nil {
		return nil, missing("period", "must be defined and of type float or int")
	}
	if p.Bandwidth == nil {
		return nil, missing("bandwidth", "must be defined and of type float or int")
	}
	if p.Smoothing == "" {
		return nil, missing("smoothing", "must be defined and of type string")
	}
	if *p.Period <= 0 {
		return nil, missing("period", "must be > 0")
	}

	name := normalizeName(p.Smoothing)
	fn, ok := smoothers[name]
	if !ok {
		return nil, &metrics.PGMError{Metric: smoothSelectName, Field: "smoothing", Reason: "is not a recognized smoothing type: " + p.Smoothing}
	}

	return &SmoothSelect{
		period:    *p.Period,
		bandwidth: *p.Bandwidth,
		smoothing: name,
		smooth:    fn,
	}, nil
}

// normalizeName case-folds a smoothing name. Casers are stateful so one is
// built per call.
func normalizeName(name string) string {
	return cases.Fold().String(name)
}

func missing(field, reason string) error {
	return &metrics.PGMError{Metric: smoothSelectName, Field: field, Reason: reason}
}

// Period returns the configured pick period in seconds.
func (s *SmoothSelect) Period() float64 { return s.period }

// Smoothing returns the normalized smoothing name.
func (s *SmoothSelect) Smoothing() string { return s.smoothing }

// Reduce returns the smoothed pick for each channel. A single channel is keyed
// by metrics.CombinedKey, otherwise picks are keyed by channel name.
func (s *SmoothSelect) Reduce(in metrics.FrequencyDomainSeries) (map[string]float64, error) {
	if err := in.Validate(); err != nil {
		return nil, eris.Wrap(err, "smooth select")
	}

	target := []float64{1 / s.period}
	picked := make(map[string]float64, len(in.Channels))
	for _, ch := range in.Channels {
		smoothed, err := s.smooth(ch.Values, in.Freqs, target, s.bandwidth)
		if err != nil {
			return nil, eris.Wrapf(err, "smooth select: channel %s", ch.Name)
		}
		key := ch.Name
		if len(in.Channels) == 1 {
			key = metrics.CombinedKey
		}
		picked[key] = smoothed[0]
	}
	return picked, nil
}

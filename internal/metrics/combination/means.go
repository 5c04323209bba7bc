package combination

import (
	"math"

	"github.com/sells-group/gmprocess-cli/internal/metrics"
)

// ArithmeticMean averages the channels sample by sample.
type ArithmeticMean struct{}

func (ArithmeticMean) Name() string { return "arithmetic_mean" }

func (c ArithmeticMean) Combine(in metrics.Input) (metrics.Result, error) {
	return combine(c.Name(), in,
		func(h1, h2 float64) float64 { return 0.5 * (h1 + h2) },
		func(s metrics.FrequencyDomainSeries, i int) float64 {
			var sum float64
			for _, ch := range s.Channels {
				sum += ch.Values[i]
			}
			return sum / float64(len(s.Channels))
		},
	)
}

// GeometricMean is sqrt(h1*h2) in the time domain. In the frequency domain it
// is the magnitude of the first channel.
type GeometricMean struct{}

func (GeometricMean) Name() string { return "geometric_mean" }

func (c GeometricMean) Combine(in metrics.Input) (metrics.Result, error) {
	return combine(c.Name(), in,
		func(h1, h2 float64) float64 { return math.Sqrt(h1 * h2) },
		func(s metrics.FrequencyDomainSeries, i int) float64 {
			// TODO: combine the first two channels once the intended
			// frequency-domain definition is confirmed upstream.
			v := s.Channels[0].Values[i]
			return math.Sqrt(v * v)
		},
	)
}

// QuadraticMean is the root mean square across channels.
type QuadraticMean struct{}

func (QuadraticMean) Name() string { return "quadratic_mean" }

func (c QuadraticMean) Combine(in metrics.Input) (metrics.Result, error) {
	return combine(c.Name(), in,
		func(h1, h2 float64) float64 { return math.Sqrt((h1*h1 + h2*h2) / 2) },
		func(s metrics.FrequencyDomainSeries, i int) float64 {
			var sum float64
			for _, ch := range s.Channels {
				v := math.Abs(ch.Values[i])
				sum += v * v
			}
			return math.Sqrt(sum / float64(len(s.Channels)))
		},
	)
}

// Package combination combines horizontal components into a single series.
package combination

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gmprocess-cli/internal/metrics"
)

// Combiner reduces the channels of an input to one combined series keyed by
// metrics.CombinedKey.
type Combiner interface {
	Name() string
	Combine(in metrics.Input) (metrics.Result, error)
}

var combiners = map[string]Combiner{
	ArithmeticMean{}.Name(): ArithmeticMean{},
	GeometricMean{}.Name():  GeometricMean{},
	QuadraticMean{}.Name():  QuadraticMean{},
}

// Lookup returns the combiner registered under name.
func Lookup(name string) (Combiner, error) {
	c, ok := combiners[name]
	if !ok {
		return nil, eris.Errorf("combination: unknown method %q (valid: %v)", name, Names())
	}
	return c, nil
}

// Names returns the registered combiner names in sorted order.
func Names() []string {
	names := make([]string, 0, len(combiners))
	for name := range combiners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// combine validates in and dispatches to the per-domain function.
func combine(name string, in metrics.Input, timeFn func(h1, h2 float64) float64, freqFn func(s metrics.FrequencyDomainSeries, i int) float64) (metrics.Result, error) {
	switch v := in.(type) {
	case metrics.TimeDomainPair:
		if err := v.Validate(); err != nil {
			return metrics.Result{}, eris.Wrap(err, name)
		}
		out := make([]float64, len(v.H1))
		for i := range out {
			out[i] = timeFn(v.H1[i], v.H2[i])
		}
		return metrics.Result{Values: map[string][]float64{metrics.CombinedKey: out}}, nil
	case metrics.FrequencyDomainSeries:
		if err := v.Validate(); err != nil {
			return metrics.Result{}, eris.Wrap(err, name)
		}
		out := make([]float64, len(v.Freqs))
		for i := range out {
			out[i] = freqFn(v, i)
		}
		return metrics.Result{
			Values: map[string][]float64{metrics.CombinedKey: out},
			Freqs:  append([]float64(nil), v.Freqs...),
		}, nil
	default:
		return metrics.Result{}, eris.Errorf("%s: unsupported input %T", name, in)
	}
}

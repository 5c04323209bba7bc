// Package smoothing implements spectral smoothing kernels.
package smoothing

import (
	"math"

	"github.com/rotisserie/eris"
)

// KonnoOhmachiName is the registered name of the Konno-Ohmachi kernel.
const KonnoOhmachiName = "konno_ohmachi"

const minFrequency = 1e-6

// KonnoOhmachi smooths spectrum, sampled at freqs, with the Konno-Ohmachi
// window and returns the smoothed amplitude at each of targetFreqs.
//
// The window for center frequency fc is (sin(b*log10(f/fc)) / (b*log10(f/fc)))^4
// and is evaluated only over [fc*10^(-3/b), fc*10^(3/b)]. A target with no
// contributing frequencies smooths to zero.
func KonnoOhmachi(spectrum, freqs, targetFreqs []float64, bandwidth float64) ([]float64, error) {
	if len(spectrum) != len(freqs) {
		return nil, eris.Errorf("smoothing: spectrum has %d values but %d frequencies", len(spectrum), len(freqs))
	}
	if bandwidth <= 0 {
		return nil, eris.Errorf("smoothing: bandwidth must be > 0, got %g", bandwidth)
	}

	out := make([]float64, len(targetFreqs))
	for i, fc := range targetFreqs {
		out[i] = smoothAt(spectrum, freqs, fc, bandwidth)
	}
	return out, nil
}

func smoothAt(spectrum, freqs []float64, fc, b float64) float64 {
	if fc < minFrequency {
		return 0
	}
	lo := fc * math.Pow(10, -3/b)
	hi := fc * math.Pow(10, 3/b)

	var total, weight float64
	for j, f := range freqs {
		if f < minFrequency || f < lo || f > hi {
			continue
		}
		w := window(f, fc, b)
		total += w * spectrum[j]
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}

func window(f, fc, b float64) float64 {
	if math.Abs(f-fc) < minFrequency {
		return 1
	}
	x := b * math.Log10(f/fc)
	w := math.Sin(x) / x
	return w * w * w * w
}

package statistics

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultBins is the number of bins used for score distributions.
const DefaultBins = 20

// Bin is one histogram bucket covering [Lower, Upper).
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram splits values into equal-width bins between their minimum and
// maximum; the last bin includes the maximum. NaN values are skipped. A
// constant input is spread over [v-0.5, v+0.5].
func Histogram(values []float64, bins int) []Bin {
	if bins <= 0 {
		bins = DefaultBins
	}
	x := slices.DeleteFunc(slices.Clone(values), math.IsNaN)
	if len(x) == 0 {
		return nil
	}
	slices.Sort(x)
	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges := floats.Span(make([]float64, bins+1), lo, hi)
	dividers := slices.Clone(edges)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, x, nil)

	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lower: edges[i], Upper: edges[i+1], Count: int(counts[i])}
	}
	return out
}

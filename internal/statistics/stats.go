// Package statistics implements the descriptive and inferential statistics
// used by the analytics views.
//
// By convention an undefined result is NaN rather than an error: a mean of no
// samples, a standard deviation of fewer than two, an interval nobody can
// compute. Callers render NaN as "nan".
package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidence is the default confidence level for intervals.
const DefaultConfidence = 0.95

// Mean returns the arithmetic mean, or NaN for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

// StdDev returns the sample standard deviation (n-1 denominator), or NaN
// when there are fewer than two values.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// MeanCI holds a sample mean and the half-width of its confidence interval.
type MeanCI struct {
	Mean      float64 `json:"mean"`
	HalfWidth float64 `json:"half_width"`
	N         int     `json:"n"`
}

// Defined reports whether the interval could be computed.
func (m MeanCI) Defined() bool { return !math.IsNaN(m.HalfWidth) }

// MeanConfidenceInterval computes the mean of values and the half-width of
// its Student-t confidence interval at the given level, using the sample
// standard error. With fewer than two values the half-width is NaN. When
// all values are equal the half-width is 0.
func MeanConfidenceInterval(values []float64, confidence float64) MeanCI {
	n := len(values)
	res := MeanCI{Mean: Mean(values), HalfWidth: math.NaN(), N: n}
	if n < 2 {
		return res
	}
	sem := stat.StdDev(values, nil) / math.Sqrt(float64(n))
	if sem == 0 {
		res.HalfWidth = 0
		return res
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	res.HalfWidth = t.Quantile((1+confidence)/2) * sem
	return res
}

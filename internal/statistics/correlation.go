package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Correlation is a Pearson coefficient with its two-sided p-value.
type Correlation struct {
	R float64 `json:"r"`
	P float64 `json:"p"`
	N int     `json:"n"`
}

// Pearson correlates the jointly present pairs of x and y. NaN entries in
// either slice drop the pair. With fewer than two pairs both R and P are
// NaN; a constant input yields NaN as well.
func Pearson(x, y []float64) Correlation {
	var xs, ys []float64
	for i := range min(len(x), len(y)) {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	n := len(xs)
	c := Correlation{R: math.NaN(), P: math.NaN(), N: n}
	if n < 2 {
		return c
	}
	c.R = stat.Correlation(xs, ys, nil)
	c.P = pearsonPValue(c.R, n)
	return c
}

func pearsonPValue(r float64, n int) float64 {
	switch {
	case math.IsNaN(r):
		return math.NaN()
	case n == 2:
		// Two points always lie on a line.
		return 1
	case math.Abs(r) >= 1:
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return 2 * dist.Survival(math.Abs(t))
}

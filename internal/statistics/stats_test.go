package statistics

import (
	"math"
	"testing"
)

func TestMean_Empty(t *testing.T) {
	if m := Mean(nil); !math.IsNaN(m) {
		t.Errorf("expected NaN mean for empty input, got %f", m)
	}
}

func TestStdDev_SampleCorrection(t *testing.T) {
	if sd := StdDev([]float64{1, 2, 3}); math.Abs(sd-1) > 1e-12 {
		t.Errorf("expected sample std 1, got %f", sd)
	}
	if sd := StdDev([]float64{0.4}); !math.IsNaN(sd) {
		t.Errorf("expected NaN std for a single value, got %f", sd)
	}
}

func TestMeanConfidenceInterval_TooFewSamples(t *testing.T) {
	for _, values := range [][]float64{nil, {0.6}} {
		ci := MeanConfidenceInterval(values, DefaultConfidence)
		if !math.IsNaN(ci.HalfWidth) {
			t.Errorf("expected NaN half-width for %v, got %f", values, ci.HalfWidth)
		}
		if ci.Defined() {
			t.Errorf("interval for %v should be undefined", values)
		}
	}
	if ci := MeanConfidenceInterval([]float64{0.6}, DefaultConfidence); ci.Mean != 0.6 {
		t.Errorf("expected mean 0.6 for single value, got %f", ci.Mean)
	}
}

func TestMeanConfidenceInterval_KnownValue(t *testing.T) {
	ci := MeanConfidenceInterval([]float64{1, 2, 3}, 0.95)
	if ci.Mean != 2 {
		t.Errorf("expected mean 2, got %f", ci.Mean)
	}
	// t(0.975, df=2) * 1/sqrt(3)
	if math.Abs(ci.HalfWidth-2.48414) > 1e-4 {
		t.Errorf("expected half-width ~2.48414, got %f", ci.HalfWidth)
	}
	if ci.N != 3 {
		t.Errorf("expected n=3, got %d", ci.N)
	}
}

func TestMeanConfidenceInterval_IdenticalValues(t *testing.T) {
	ci := MeanConfidenceInterval([]float64{0.4, 0.4, 0.4}, 0.95)
	if ci.HalfWidth != 0 {
		t.Errorf("expected zero half-width for identical values, got %f", ci.HalfWidth)
	}
}

func TestMeanConfidenceInterval_NonNegativeAndNarrowing(t *testing.T) {
	small := []float64{0.2, 0.4, 0.8}
	large := []float64{0.2, 0.4, 0.8, 0.2, 0.4, 0.8, 0.2, 0.4, 0.8, 0.2, 0.4, 0.8}
	ciSmall := MeanConfidenceInterval(small, 0.95)
	ciLarge := MeanConfidenceInterval(large, 0.95)
	if ciSmall.HalfWidth < 0 || math.IsInf(ciSmall.HalfWidth, 0) {
		t.Errorf("half-width should be finite and non-negative, got %f", ciSmall.HalfWidth)
	}
	if ciLarge.HalfWidth >= ciSmall.HalfWidth {
		t.Errorf("larger sample should yield narrower CI: small=%f, large=%f", ciSmall.HalfWidth, ciLarge.HalfWidth)
	}
	if wider := MeanConfidenceInterval(small, 0.99); wider.HalfWidth <= ciSmall.HalfWidth {
		t.Errorf("higher confidence should widen the interval: 95%%=%f, 99%%=%f", ciSmall.HalfWidth, wider.HalfWidth)
	}
}

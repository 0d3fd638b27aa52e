package statistics

import (
	"math"
	"testing"
)

func TestHistogram_Counts(t *testing.T) {
	bins := Histogram([]float64{0, 0.2, 0.2, 0.8, math.NaN()}, 4)
	if len(bins) != 4 {
		t.Fatalf("expected 4 bins, got %d", len(bins))
	}
	want := []int{1, 2, 0, 1}
	total := 0
	for i, b := range bins {
		if b.Count != want[i] {
			t.Errorf("bin %d: expected %d, got %d", i, want[i], b.Count)
		}
		total += b.Count
	}
	if total != 4 {
		t.Errorf("expected 4 values counted, got %d", total)
	}
	if bins[0].Lower != 0 || bins[3].Upper != 0.8 {
		t.Errorf("unexpected range [%f, %f]", bins[0].Lower, bins[3].Upper)
	}
}

func TestHistogram_DefaultBinsAndConstantInput(t *testing.T) {
	bins := Histogram([]float64{0.4, 0.4}, 0)
	if len(bins) != DefaultBins {
		t.Fatalf("expected %d bins, got %d", DefaultBins, len(bins))
	}
	if math.Abs(bins[0].Lower+0.1) > 1e-12 || math.Abs(bins[DefaultBins-1].Upper-0.9) > 1e-12 {
		t.Errorf("expected range [-0.1, 0.9], got [%f, %f]", bins[0].Lower, bins[DefaultBins-1].Upper)
	}
}

func TestHistogram_Empty(t *testing.T) {
	if bins := Histogram([]float64{math.NaN()}, 5); bins != nil {
		t.Errorf("expected nil bins, got %v", bins)
	}
}

package stats

import "math"

import "testing"

func TestMeanAndVariance(t *testing.T) {
	var tr Tracker
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	for _, x := range xs {
		tr.Observe(x)
	}

	wantMean := 5.0
	if math.Abs(tr.Mean()-wantMean) > 1e-9 {
		t.Fatalf("mean = %v, want %v", tr.Mean(), wantMean)
	}

	// Sample variance (Bessel-corrected) for this set is 32/7.
	wantVar := 32.0 / 7.0
	if math.Abs(tr.Variance()-wantVar) > 1e-9 {
		t.Fatalf("variance = %v, want %v", tr.Variance(), wantVar)
	}
}

func TestZScoreRequiresMinSamples(t *testing.T) {
	var tr Tracker
	for i := 0; i < 29; i++ {
		tr.Observe(1000)
	}
	if _, ok := tr.ZScore(5000, 30); ok {
		t.Fatal("expected z-score undefined below min sample count")
	}
	tr.Observe(1000.01)
	if _, ok := tr.ZScore(5000, 30); !ok {
		t.Fatal("expected z-score defined at min sample count")
	}
}

func TestZScoreMagnitude(t *testing.T) {
	var tr Tracker
	for i := 0; i < 30; i++ {
		tr.Observe(1000 + float64(i%3-1)*10)
	}
	z, ok := tr.ZScore(1_000_000, 30)
	if !ok {
		t.Fatal("expected z-score defined")
	}
	if z < 3.5 {
		t.Fatalf("expected large z-score for 1_000_000 outlier, got %v", z)
	}
}

func TestCompactTrackerWithinFixedPointTolerance(t *testing.T) {
	var full Tracker
	var compact CompactTracker
	for i := 0; i < 1000; i++ {
		x := float64(i%97) + 0.5
		full.Observe(x)
		compact.Observe(x)
	}

	const tol = 1.0 / 65536 * 1000 // scaled tolerance for accumulated rounding over many samples
	if math.Abs(full.Mean()-compact.Mean()) > tol {
		t.Fatalf("mean diverged: full=%v compact=%v", full.Mean(), compact.Mean())
	}
}

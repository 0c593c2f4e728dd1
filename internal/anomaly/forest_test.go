package anomaly

import (
	"math/rand"
	"testing"
)

func clusteredData(n int) [][]float64 {
	rng := rand.New(rand.NewSource(1))
	data := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		data = append(data, []float64{
			rng.Float64() * 0.1,
			0.5 + rng.Float64()*0.1,
			rng.Float64() * 0.1,
		})
	}
	return data
}

func TestForestUnfitted(t *testing.T) {
	f := NewIsolationForest()
	if f.Fitted() {
		t.Fatal("fresh forest reports fitted")
	}
	if got := f.Decision([]float64{0, 0, 0}); got != 0 {
		t.Fatalf("unfitted Decision = %v, want 0", got)
	}
}

func TestForestSeparatesOutliers(t *testing.T) {
	data := clusteredData(200)
	f := NewIsolationForest()
	f.Fit(data)

	if !f.Fitted() {
		t.Fatal("forest not fitted")
	}

	outlier := []float64{5, -5, 5}
	if !f.Predict(outlier) {
		t.Fatalf("far-out point not predicted as outlier, decision %v", f.Decision(outlier))
	}

	inlier := []float64{0.05, 0.55, 0.05}
	if f.Decision(inlier) <= f.Decision(outlier) {
		t.Fatalf("inlier decision %v should exceed outlier decision %v",
			f.Decision(inlier), f.Decision(outlier))
	}
}

func TestForestContaminationBound(t *testing.T) {
	data := clusteredData(200)
	f := NewIsolationForest()
	f.Fit(data)

	// The offset is the 10th percentile of training scores, so roughly 10%
	// of the training set sits below the decision boundary.
	flagged := 0
	for _, x := range data {
		if f.Predict(x) {
			flagged++
		}
	}
	if flagged < 5 || flagged > 40 {
		t.Fatalf("flagged %d of 200 training points, expected around 20", flagged)
	}
}

func TestForestDegenerateData(t *testing.T) {
	// All-identical samples leave nothing to split on; Fit must not panic
	// and scoring must stay usable.
	data := make([][]float64, 60)
	for i := range data {
		data[i] = []float64{1, 1, 1}
	}

	f := NewIsolationForest()
	f.Fit(data)
	if !f.Fitted() {
		t.Fatal("forest should report fitted even on degenerate data")
	}
	_ = f.Decision([]float64{2, 2, 2})
}

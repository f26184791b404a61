package metrics

import (
	"math"
	"testing"
)

func floatEq(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s=%v want=%v", name, got, want)
	}
}

func TestMedian(t *testing.T) {
	floatEq(t, "odd", median([]float64{5, 1, 3}), 3)
	floatEq(t, "even", median([]float64{4, 1, 3, 2}), 2.5)
	floatEq(t, "empty", median(nil), 0)
}

func TestStddev(t *testing.T) {
	floatEq(t, "pair", stddev([]float64{1, 3}, 2), 1)
	floatEq(t, "single", stddev([]float64{7}, 7), 0)
}

func TestPercentile(t *testing.T) {
	v := []float64{1, 2, 3, 4, 5}
	floatEq(t, "p0", percentile(v, 0), 1)
	floatEq(t, "p100", percentile(v, 100), 5)
	floatEq(t, "p50", percentile(v, 50), 3)
	floatEq(t, "p95", percentile(v, 95), 4.8)
	floatEq(t, "empty", percentile(nil, 95), 0)
}

func TestCompressedScore(t *testing.T) {
	floatEq(t, "empty", compressedScore(nil), 0)
	floatEq(t, "single", compressedScore([]float64{2}), math.Asinh(2))
	floatEq(t, "symmetric", compressedScore([]float64{-1, 1}), 0)

	// One outsized win cannot dominate: the compressed score of a lucky
	// wallet stays below a consistently profitable one.
	lucky := compressedScore([]float64{50, -0.9, -0.9, -0.9, -0.9})
	steady := compressedScore([]float64{0.8, 0.7, 0.9, 0.6, 0.8})
	if lucky >= steady {
		t.Fatalf("lucky=%v steady=%v want lucky < steady", lucky, steady)
	}

	// Naive averaging would rank them the other way around.
	if mean([]float64{50, -0.9, -0.9, -0.9, -0.9}) <= mean([]float64{0.8, 0.7, 0.9, 0.6, 0.8}) {
		t.Fatalf("fixture does not exercise the damping property")
	}
}

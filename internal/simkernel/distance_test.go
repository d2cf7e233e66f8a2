package simkernel

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	tests := []struct {
		name   string
		metric Metric
		want   float32
	}{
		{"euclidean", Euclidean, float32(math.Sqrt(2))},
		{"manhattan", Manhattan, 2},
		{"cosine", Cosine, 1},
		{"inner_product", InnerProduct, 0},
		{"hamming", Hamming, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(tt.metric, a, b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistanceDimensionMismatch(t *testing.T) {
	_, err := Distance(Euclidean, []float32{1, 2}, []float32{1, 2, 3})
	if err == nil {
		t.Error("expected error for dimension mismatch, got none")
	}
}

func TestDistanceUnsupportedMetric(t *testing.T) {
	_, err := Distance(Metric(99), []float32{1}, []float32{1})
	if err == nil {
		t.Error("expected error for unsupported metric, got none")
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	if err := Normalize(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-6 {
		t.Errorf("expected unit norm, got %v", math.Sqrt(norm))
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	if err := Normalize([]float32{0, 0, 0}); err == nil {
		t.Error("expected error normalizing zero vector, got none")
	}
}

func TestApproxDistanceFullSample(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{4, 3, 2, 1}
	full, err := Distance(Euclidean, a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	approx, err := ApproxDistance(Euclidean, a, b, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != approx {
		t.Errorf("sampleEvery=1 should match full distance: got %v want %v", approx, full)
	}
}

func TestBatchDistance(t *testing.T) {
	q := []float32{0, 0}
	candidates := [][]float32{{3, 4}, {0, 0}, {1, 0}}
	out := make([]float32, len(candidates))
	if err := BatchDistance(Euclidean, q, candidates, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{5, 0, 1}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("index %d: got %v want %v", i, out[i], want[i])
		}
	}
}

func TestKernelScoreBatchEarlyTermination(t *testing.T) {
	k, err := NewKernel(Euclidean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := []float32{0, 0}
	candidates := [][]float32{{0, 0}, {0.1, 0}, {10, 10}, {20, 20}}
	out, err := k.ScoreBatch(q, candidates, 0.5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[len(out)-1] != float32(maxFloat32) {
		t.Errorf("expected trailing candidate to be left unscored after early termination")
	}
}

func TestDetectStrategyReturnsValidTier(t *testing.T) {
	s := DetectStrategy()
	switch s {
	case StrategyScalar, StrategySSE2, StrategyAVX2, StrategyAVX512:
	default:
		t.Errorf("unexpected strategy tier: %v", s)
	}
}

package simkernel

import "runtime"

// Kernel bundles a metric with the strategy the host qualified for and
// exposes batch/threshold-aware scoring on top of the raw distance funcs.
type Kernel struct {
	metric   Metric
	strategy Strategy
	fn       DistanceFunc
}

// NewKernel builds a dispatch-ready kernel for metric, detecting the host's
// strategy tier once at construction time.
func NewKernel(metric Metric) (*Kernel, error) {
	fn, err := Func(metric)
	if err != nil {
		return nil, err
	}
	return &Kernel{metric: metric, strategy: DetectStrategy(), fn: fn}, nil
}

func (k *Kernel) Metric() Metric     { return k.metric }
func (k *Kernel) Strategy() Strategy { return k.strategy }

// Score computes a single distance.
func (k *Kernel) Score(a, b []float32) (float32, error) {
	if err := checkDims(a, b); err != nil {
		return 0, err
	}
	return k.fn(a, b)
}

// ScoreBatch scores q against every candidate. When threshold > 0 and the
// kernel has already collected at least minHits candidates at or below
// threshold, it stops scoring the remainder early (spec §4.1 "may support
// early termination"); unscored slots are set to the largest finite
// float32 (maxFloat32) so callers can distinguish them from genuine matches.
func (k *Kernel) ScoreBatch(q []float32, candidates [][]float32, threshold float32, minHits int) ([]float32, error) {
	out := make([]float32, len(candidates))
	hits := 0
	for i, c := range candidates {
		d, err := k.fn(q, c)
		if err != nil {
			return nil, err
		}
		out[i] = d
		if threshold > 0 && d <= threshold {
			hits++
			if hits >= minHits {
				for j := i + 1; j < len(candidates); j++ {
					out[j] = float32(maxFloat32)
				}
				break
			}
		}
	}
	return out, nil
}

const maxFloat32 = 3.4028235e+38

// Parallelism suggests a worker count for a batch of the given size,
// capped by GOMAXPROCS, matching the coarse-grained fan-out the teacher's
// index build step uses.
func Parallelism(batchSize int) int {
	n := runtime.GOMAXPROCS(0)
	if batchSize < n {
		return 1
	}
	return n
}

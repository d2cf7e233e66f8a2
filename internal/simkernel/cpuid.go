package simkernel

import "golang.org/x/sys/cpu"

// Strategy names the execution path the dispatcher picked for a batch of
// distance computations. VexFS's kernels are portable scalar Go; Strategy
// exists so callers and metrics can see which feature tier the host
// qualified for, the way a SIMD-dispatched kernel would report it.
type Strategy int

const (
	StrategyScalar Strategy = iota
	StrategySSE2
	StrategyAVX2
	StrategyAVX512
)

func (s Strategy) String() string {
	switch s {
	case StrategyScalar:
		return "scalar"
	case StrategySSE2:
		return "sse2"
	case StrategyAVX2:
		return "avx2"
	case StrategyAVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// DetectStrategy inspects the host's CPU feature set and returns the best
// tier available. It never changes the numeric kernel used (see
// distance.go); it is informational only, reported through
// Kernel.Strategy.
func DetectStrategy() Strategy {
	switch {
	case cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW:
		return StrategyAVX512
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		return StrategyAVX2
	case cpu.X86.HasSSE2:
		return StrategySSE2
	default:
		return StrategyScalar
	}
}

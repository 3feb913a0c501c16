// pkg/hnsw/distance.go
package hnsw

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

// DistanceKind selects one of the three scoring functions spec.md §4.2
// names. Lower is always better, regardless of kind.
type DistanceKind uint8

const (
	// L2 scores by squared Euclidean distance: sum((x_i - y_i)^2).
	L2 DistanceKind = iota
	// Inner scores by 1 - dot(x, y).
	Inner
	// Linear applies a per-tuple bias scalar on top of the raw inner
	// product (SPEC_FULL.md §C: scorer(s, bias) = s * bias, following
	// original_source/contrib/quantum/hnutil.c). Index creation with this
	// kind implies select_neighbors_simple per spec.md §4.2/§6.2.
	Linear
)

func (k DistanceKind) String() string {
	switch k {
	case L2:
		return "l2"
	case Inner:
		return "dot"
	case Linear:
		return "linear"
	default:
		return "unknown"
	}
}

// ParseDistanceKind parses the `algorithm` creation option (spec.md §6.2).
func ParseDistanceKind(s string) (DistanceKind, error) {
	switch strings.ToLower(s) {
	case "", "l2":
		return L2, nil
	case "dot":
		return Inner, nil
	case "linear":
		return Linear, nil
	default:
		return 0, newErr(BadAlgorithm, fmt.Sprintf("unrecognized algorithm %q", s), nil)
	}
}

// UsesSimpleSelection reports whether this distance kind forces
// select_neighbors_simple rather than the heuristic diversity rule
// (spec.md §4.2: "Selected by the linear-custom distance kind").
func (k DistanceKind) UsesSimpleSelection() bool {
	return k == Linear
}

// Kernel computes the score between a query and a candidate vector. biasY
// is the candidate tuple's own bias field: spec.md §4.2 says the
// linear-custom scorer applies "scorer(s, bias) where bias is the target
// tuple's bias field", so every kernel call carries the target's bias
// even though L2/Inner ignore it. Implementations may use SIMD; ScalarX
// variants below are the semantic reference spec.md §4.2 requires kernels
// to agree with.
type Kernel func(q, y []float32, biasY float32) float32

// kernelFor returns the accelerated kernel for kind.
func kernelFor(kind DistanceKind) Kernel {
	switch kind {
	case L2:
		return func(q, y []float32, _ float32) float32 { return L2Squared(q, y) }
	case Inner:
		return func(q, y []float32, _ float32) float32 { return InnerProductDistance(q, y) }
	case Linear:
		return func(q, y []float32, biasY float32) float32 { return LinearCustom(q, y, biasY) }
	default:
		return func(q, y []float32, _ float32) float32 { return L2Squared(q, y) }
	}
}

// L2Squared computes sum((x_i-y_i)^2), SIMD-accelerated via vek32's dot
// product: ||x-y||^2 = dot(x,x) + dot(y,y) - 2*dot(x,y).
func L2Squared(x, y []float32) float32 {
	xx := vek32.Dot(x, x)
	yy := vek32.Dot(y, y)
	xy := vek32.Dot(x, y)
	d := xx + yy - 2*xy
	if d < 0 {
		// Guard against cancellation error producing a tiny negative value.
		d = 0
	}
	return d
}

// ScalarL2Squared is the scalar reference form of L2Squared, used by
// distance-kernel-agreement tests (spec.md §8 property 9).
func ScalarL2Squared(x, y []float32) float32 {
	var sum float32
	for i := range x {
		diff := x[i] - y[i]
		sum += diff * diff
	}
	return sum
}

// InnerProductDistance computes 1 - dot(x, y); lower is better.
func InnerProductDistance(x, y []float32) float32 {
	return 1 - vek32.Dot(x, y)
}

// ScalarInnerProductDistance is the scalar reference for
// InnerProductDistance.
func ScalarInnerProductDistance(x, y []float32) float32 {
	var dot float32
	for i := range x {
		dot += x[i] * y[i]
	}
	return 1 - dot
}

// LinearCustom computes scorer(s, bias) = dot(x, y) * bias.
func LinearCustom(x, y []float32, bias float32) float32 {
	return vek32.Dot(x, y) * bias
}

// randomLevel samples L = floor(-ln(U)/ln(M+1)), clamped to
// [0, MaxLevel), per spec.md §3. u must be in (0, 1].
func randomLevel(m int, u float32) int {
	l := int(math32.Floor(-math32.Log(u) / math32.Log(float32(m+1))))
	if l < 0 {
		l = 0
	}
	if l >= MaxLevel {
		l = MaxLevel - 1
	}
	return l
}

// pkg/hnsw/config.go
package hnsw

import "fmt"

// CreateOptions holds the creation-time options of spec.md §6.2: base
// fan-out, beam widths, dimensionality and distance kind.
type CreateOptions struct {
	// M is the base fan-out. Default 16, range [1, 64].
	M int
	// EfConstruction is the construction beam width. Default 128, range [1, 500].
	EfConstruction int
	// Dims is the vector dimensionality. Default 64, range [1, 4096].
	Dims int
	// EfSearch is the default query beam width. Default 64, range [1, 1024].
	EfSearch int
	// Algorithm is one of "l2", "dot", "linear". Default "l2".
	Algorithm string
}

// OperationalOptions holds the build-time options of spec.md §6.3.
type OperationalOptions struct {
	// IndexParallel is the number of L0 workers, [0, 20]. 0 selects a
	// single-process sequential build.
	IndexParallel int
	// LinkNearest forces simple neighbor selection when true.
	LinkNearest bool
}

// DefaultCreateOptions returns spec.md §6.2's documented defaults.
func DefaultCreateOptions(dims int) CreateOptions {
	return CreateOptions{
		M:              16,
		EfConstruction: 128,
		Dims:           dims,
		EfSearch:       64,
		Algorithm:      "l2",
	}
}

// validate checks every option against its documented range and resolves
// the algorithm string to a DistanceKind, surfacing BadAlgorithm per
// spec.md §7.
func (o CreateOptions) validate() (DistanceKind, error) {
	if o.M < 1 || o.M > 64 {
		return 0, fmt.Errorf("m=%d out of range [1,64]", o.M)
	}
	if o.EfConstruction < 1 || o.EfConstruction > 500 {
		return 0, fmt.Errorf("efbuild=%d out of range [1,500]", o.EfConstruction)
	}
	if o.Dims < 1 || o.Dims > 4096 {
		return 0, fmt.Errorf("dims=%d out of range [1,4096]", o.Dims)
	}
	if o.EfSearch < 1 || o.EfSearch > 1024 {
		return 0, fmt.Errorf("efsearch=%d out of range [1,1024]", o.EfSearch)
	}
	kind, err := ParseDistanceKind(o.Algorithm)
	if err != nil {
		return 0, err
	}
	return kind, nil
}

func (o OperationalOptions) validate() error {
	if o.IndexParallel < 0 || o.IndexParallel > 20 {
		return fmt.Errorf("index_parallel=%d out of range [0,20]", o.IndexParallel)
	}
	return nil
}

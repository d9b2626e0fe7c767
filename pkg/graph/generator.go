package graph

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime/debug"
	"slices"
)

var (
	// ErrInvalidConfiguration marks parameters for which generation would
	// not terminate or cannot be represented.
	ErrInvalidConfiguration = errors.New("invalid graph configuration")
	// ErrAllocation is returned when the adjacency structure would not fit
	// in the configured memory budget.
	ErrAllocation = errors.New("graph allocation exceeds memory limit")
)

// MaxVertices is the largest vertex count addressable with int32 ids.
const MaxVertices = math.MaxInt32

// sliceHeaderBytes approximates the per-vertex overhead of an adjacency slice.
const sliceHeaderBytes = 24

type generateOptions struct {
	memoryLimit int64
}

// GenerateOption customizes Generate.
type GenerateOption func(*generateOptions)

// WithMemoryLimit caps the estimated adjacency footprint in bytes.
// Zero or a negative value disables the check.
func WithMemoryLimit(bytes int64) GenerateOption {
	return func(o *generateOptions) {
		o.memoryLimit = bytes
	}
}

// ValidateParams checks that Generate terminates for the given sizes.
func ValidateParams(numVertices, avgDegree int) error {
	if numVertices < 1 {
		return fmt.Errorf("%w: vertex count %d must be positive", ErrInvalidConfiguration, numVertices)
	}
	if numVertices > MaxVertices {
		return fmt.Errorf("%w: vertex count %d exceeds %d", ErrInvalidConfiguration, numVertices, MaxVertices)
	}
	if avgDegree < 0 {
		return fmt.Errorf("%w: average degree %d must not be negative", ErrInvalidConfiguration, avgDegree)
	}
	if avgDegree >= numVertices-1 {
		return fmt.Errorf("%w: average degree %d must be below %d for %d vertices",
			ErrInvalidConfiguration, avgDegree, numVertices-1, numVertices)
	}
	return nil
}

// EstimateBytes approximates the adjacency footprint: every accepted draw
// stores two int32 entries and each vertex fills avgDegree slots of its
// own. Lists that grow past their initial capacity can exceed it.
func EstimateBytes(numVertices, avgDegree int) float64 {
	n := float64(numVertices)
	return n*sliceHeaderBytes + 2*n*float64(avgDegree)*4
}

// Generate builds a random undirected graph in which every vertex has at
// least avgDegree neighbors. Vertices are filled in increasing id order by
// drawing candidates from a PCG source seeded with seed, so equal inputs
// yield bit-identical graphs in every process.
func Generate(numVertices, avgDegree int, seed int64, opts ...GenerateOption) (*Graph, error) {
	if err := ValidateParams(numVertices, avgDegree); err != nil {
		return nil, err
	}

	o := generateOptions{memoryLimit: debug.SetMemoryLimit(-1)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.memoryLimit > 0 && o.memoryLimit < math.MaxInt64 {
		if need := EstimateBytes(numVertices, avgDegree); need > float64(o.memoryLimit) {
			return nil, fmt.Errorf("%w: need ~%.0f bytes for %d vertices of degree %d, limit %d",
				ErrAllocation, need, numVertices, avgDegree, o.memoryLimit)
		}
	}

	g := &Graph{Adj: make([][]int32, numVertices)}
	for i := range g.Adj {
		g.Adj[i] = make([]int32, 0, avgDegree)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	for i := 0; i < numVertices; i++ {
		for len(g.Adj[i]) < avgDegree {
			j := rng.IntN(numVertices)
			if j == i || slices.Contains(g.Adj[i], int32(j)) {
				continue
			}
			g.addEdge(i, j)
		}
	}
	return g, nil
}

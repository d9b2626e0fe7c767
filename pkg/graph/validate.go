package graph

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned by Validate when the adjacency structure breaks
// an undirected-graph invariant.
var ErrMalformed = errors.New("malformed graph")

// Validate checks ids are in range, there are no self loops or duplicate
// neighbors, and that adjacency is symmetric.
func Validate(g *Graph) error {
	n := g.NumVertices()
	seen := make(map[int32]struct{})
	for v, nbrs := range g.Adj {
		clear(seen)
		for _, u := range nbrs {
			if u < 0 || int(u) >= n {
				return fmt.Errorf("%w: vertex %d has neighbor %d outside [0,%d)", ErrMalformed, v, u, n)
			}
			if int(u) == v {
				return fmt.Errorf("%w: self loop on vertex %d", ErrMalformed, v)
			}
			if _, dup := seen[u]; dup {
				return fmt.Errorf("%w: vertex %d lists neighbor %d twice", ErrMalformed, v, u)
			}
			seen[u] = struct{}{}
			if !g.HasEdge(int(u), v) {
				return fmt.Errorf("%w: edge %d-%d is not symmetric", ErrMalformed, v, u)
			}
		}
	}
	return nil
}

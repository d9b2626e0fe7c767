package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/DrSkyle/graphbench/pkg/comm"
	"github.com/DrSkyle/graphbench/pkg/graph"
)

// Mode selects the traversal timed by Measure.
type Mode int

const (
	DFS Mode = iota
	BFS
)

func (m Mode) String() string {
	switch m {
	case DFS:
		return "dfs"
	case BFS:
		return "bfs"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Sample is one rank's timing of one pass.
type Sample struct {
	// Seconds of local traversal work between the two barriers.
	Seconds float64
	// Roots is the number of traversals launched from the range.
	Roots int
	// Marked is the number of vertices visited, inside or outside the range.
	Marked int
}

// Measure times one pass over r. Every rank must call it with the same
// mode. The pass uses a fresh VisitedSet and is bracketed by two barriers;
// the clock stops before the second barrier, so waiting on slower ranks is
// not counted. An empty range still takes part in both barriers.
func Measure(ctx context.Context, c comm.Communicator, g *graph.Graph, r graph.VertexRange, mode Mode) (Sample, error) {
	visit := graph.DFS
	if mode == BFS {
		visit = graph.BFS
	}
	visited := graph.NewVisitedSet(g.NumVertices())

	if err := c.Barrier(ctx); err != nil {
		return Sample{}, fmt.Errorf("%s start barrier: %w", mode, err)
	}

	var s Sample
	if r.Len() > 0 {
		start := time.Now()
		for v := r.Start; v < r.End; v++ {
			if visited[v] {
				continue
			}
			s.Roots++
			s.Marked += visit(g, v, visited)
		}
		s.Seconds = time.Since(start).Seconds()
	}

	if err := c.Barrier(ctx); err != nil {
		return Sample{}, fmt.Errorf("%s end barrier: %w", mode, err)
	}
	return s, nil
}

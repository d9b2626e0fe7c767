package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/DrSkyle/graphbench/pkg/comm"
	"github.com/DrSkyle/graphbench/pkg/config"
	"github.com/DrSkyle/graphbench/pkg/graph"
)

// ErrNoGraph is returned by BroadcastGraph on receivers when the root had
// no graph to send, e.g. because its generation failed.
var ErrNoGraph = errors.New("coordinator has no graph to broadcast")

// GraphParams are the generation inputs shared by all ranks.
type GraphParams struct {
	Vertices    int
	AvgDegree   int
	Seed        int64
	MemoryLimit int64
}

func (p GraphParams) generate() (*graph.Graph, error) {
	var opts []graph.GenerateOption
	if p.MemoryLimit > 0 {
		opts = append(opts, graph.WithMemoryLimit(p.MemoryLimit))
	}
	return graph.Generate(p.Vertices, p.AvgDegree, p.Seed, opts...)
}

// Replicate gives every rank its own copy of the configuration's graph.
// With StrategyRegenerate each rank generates it from the shared seed and
// no collective is issued. With StrategyBroadcast the coordinator generates
// it and sends it with BroadcastGraph.
func Replicate(ctx context.Context, c comm.Communicator, p GraphParams, strategy config.Strategy) (*graph.Graph, error) {
	switch strategy {
	case config.StrategyRegenerate, "":
		return p.generate()
	case config.StrategyBroadcast:
		var g *graph.Graph
		var genErr error
		if c.Rank() == Coordinator {
			g, genErr = p.generate()
		}
		// A failed root still takes part so that receivers learn about it
		// instead of waiting for a vertex count.
		out, err := BroadcastGraph(ctx, c, g, Coordinator)
		if genErr != nil {
			return nil, genErr
		}
		return out, err
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownStrategy, strategy)
}

// BroadcastGraph copies root's graph to every rank. The root broadcasts the
// vertex count, then for each vertex the neighbor count followed by exactly
// that many ids. Loop bounds on receivers come from the broadcast values,
// so all ranks issue the same collectives. A nil graph on root is announced
// as a negative count and yields ErrNoGraph everywhere.
func BroadcastGraph(ctx context.Context, c comm.Communicator, g *graph.Graph, root int) (*graph.Graph, error) {
	isRoot := c.Rank() == root

	n := -1
	if isRoot && g != nil {
		n = g.NumVertices()
	}
	n, err := c.BroadcastInt(ctx, n, root)
	if err != nil {
		return nil, fmt.Errorf("broadcast vertex count: %w", err)
	}
	if n < 0 {
		return nil, ErrNoGraph
	}

	out := g
	if !isRoot {
		out = graph.New(n)
	}
	for i := 0; i < n; i++ {
		var nbrs []int32
		count := 0
		if isRoot {
			nbrs = g.Adj[i]
			count = len(nbrs)
		}
		count, err = c.BroadcastInt(ctx, count, root)
		if err != nil {
			return nil, fmt.Errorf("broadcast degree of vertex %d: %w", i, err)
		}
		ids, err := c.BroadcastInt32s(ctx, nbrs, root)
		if err != nil {
			return nil, fmt.Errorf("broadcast neighbors of vertex %d: %w", i, err)
		}
		if len(ids) != count {
			return nil, fmt.Errorf("%w: vertex %d announced %d neighbors, received %d",
				comm.ErrCollectiveMismatch, i, count, len(ids))
		}
		if !isRoot {
			out.Adj[i] = ids
		}
	}
	return out, nil
}

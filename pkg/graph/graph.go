// Package graph holds the undirected adjacency structure benchmarked by
// graphbench, its seeded generator and the DFS/BFS visit algorithms.
package graph

import (
	"fmt"
	"slices"
)

// Graph is an undirected graph stored as one adjacency list per vertex.
// Vertex ids are 0..N-1. After generation or replication the graph is
// read-only; traversals never mutate it.
type Graph struct {
	Adj [][]int32
}

// New allocates a graph with n empty adjacency lists.
func New(n int) *Graph {
	return &Graph{Adj: make([][]int32, n)}
}

// FromEdges builds a graph from an explicit undirected edge list.
// Self loops and duplicate edges are dropped.
func FromEdges(n int, edges [][2]int) (*Graph, error) {
	g := New(n)
	for _, e := range edges {
		u, v := e[0], e[1]
		if u < 0 || u >= n || v < 0 || v >= n {
			return nil, fmt.Errorf("edge %d-%d out of range [0,%d)", u, v, n)
		}
		if u == v || g.HasEdge(u, v) {
			continue
		}
		g.addEdge(u, v)
	}
	return g, nil
}

// NumVertices returns N.
func (g *Graph) NumVertices() int {
	return len(g.Adj)
}

// NumEdges returns the number of undirected edges.
func (g *Graph) NumEdges() int {
	total := 0
	for _, nbrs := range g.Adj {
		total += len(nbrs)
	}
	return total / 2
}

// Neighbors returns the adjacency list of v. Callers must not modify it.
func (g *Graph) Neighbors(v int) []int32 {
	return g.Adj[v]
}

// Degree returns |adj[v]|.
func (g *Graph) Degree(v int) int {
	return len(g.Adj[v])
}

// HasEdge reports whether u and v are adjacent.
func (g *Graph) HasEdge(u, v int) bool {
	return slices.Contains(g.Adj[u], int32(v))
}

// Equal reports whether both graphs have identical adjacency lists,
// including neighbor order.
func (g *Graph) Equal(other *Graph) bool {
	if len(g.Adj) != len(other.Adj) {
		return false
	}
	for i := range g.Adj {
		if !slices.Equal(g.Adj[i], other.Adj[i]) {
			return false
		}
	}
	return true
}

func (g *Graph) addEdge(u, v int) {
	g.Adj[u] = append(g.Adj[u], int32(v))
	g.Adj[v] = append(g.Adj[v], int32(u))
}

package graph

// Stats summarizes a generated graph.
type Stats struct {
	Vertices         int     `json:"vertices" yaml:"vertices"`
	Edges            int     `json:"edges" yaml:"edges"`
	MinDegree        int     `json:"min_degree" yaml:"min_degree"`
	MaxDegree        int     `json:"max_degree" yaml:"max_degree"`
	MeanDegree       float64 `json:"mean_degree" yaml:"mean_degree"`
	Components       int     `json:"components" yaml:"components"`
	LargestComponent int     `json:"largest_component" yaml:"largest_component"`
}

// Analyze computes degree and connectivity statistics with a union-find
// pass over every edge.
func Analyze(g *Graph) Stats {
	n := g.NumVertices()
	s := Stats{Vertices: n}
	if n == 0 {
		return s
	}

	uf := Components(g)
	s.MinDegree = len(g.Adj[0])
	entries := 0
	for v, nbrs := range g.Adj {
		d := len(nbrs)
		entries += d
		s.MinDegree = min(s.MinDegree, d)
		s.MaxDegree = max(s.MaxDegree, d)
		if uf.Find(v) == v {
			s.Components++
			s.LargestComponent = max(s.LargestComponent, uf.SetSize(v))
		}
	}
	s.Edges = entries / 2
	s.MeanDegree = float64(entries) / float64(n)
	return s
}

// Components groups vertices by connectivity.
func Components(g *Graph) *UnionFind {
	uf := NewUnionFind(g.NumVertices())
	for v, nbrs := range g.Adj {
		for _, u := range nbrs {
			if int(u) > v {
				uf.Union(v, int(u))
			}
		}
	}
	return uf
}

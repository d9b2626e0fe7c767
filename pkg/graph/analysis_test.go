package graph

import (
	"testing"
)

func TestAnalyze(t *testing.T) {
	g, err := FromEdges(7, [][2]int{{0, 1}, {1, 2}, {2, 0}, {3, 4}})
	if err != nil {
		t.Fatal(err)
	}

	s := Analyze(g)

	if s.Vertices != 7 || s.Edges != 4 {
		t.Errorf("Expected 7 vertices and 4 edges, got %d and %d", s.Vertices, s.Edges)
	}
	// Components: {0,1,2}, {3,4}, {5}, {6}
	if s.Components != 4 {
		t.Errorf("Expected 4 components, got %d", s.Components)
	}
	if s.LargestComponent != 3 {
		t.Errorf("Expected largest component 3, got %d", s.LargestComponent)
	}
	if s.MinDegree != 0 || s.MaxDegree != 2 {
		t.Errorf("Degree bounds mismatch: min %d max %d", s.MinDegree, s.MaxDegree)
	}
	if s.MeanDegree != 8.0/7.0 {
		t.Errorf("Expected mean degree %f, got %f", 8.0/7.0, s.MeanDegree)
	}
}

func TestAnalyze_Empty(t *testing.T) {
	s := Analyze(New(0))
	if s.Components != 0 || s.Vertices != 0 {
		t.Errorf("Empty graph should have zero stats, got %+v", s)
	}
}

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(5)
	uf.Union(0, 1)
	uf.Union(3, 4)
	uf.Union(1, 4)

	if !uf.Connected(0, 3) {
		t.Errorf("0 and 3 should be connected through 1-4")
	}
	if uf.Connected(2, 0) {
		t.Errorf("2 is isolated")
	}
	if uf.SetSize(4) != 4 {
		t.Errorf("Expected set size 4, got %d", uf.SetSize(4))
	}
}

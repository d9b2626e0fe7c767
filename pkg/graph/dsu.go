package graph

// UnionFind is a disjoint-set forest over vertex ids with path halving and
// union by size.
type UnionFind struct {
	parent []int32
	size   []int32
}

// NewUnionFind initializes n singleton sets.
func NewUnionFind(n int) *UnionFind {
	parent := make([]int32, n)
	size := make([]int32, n)
	for i := range parent {
		parent[i] = int32(i)
		size[i] = 1
	}
	return &UnionFind{parent: parent, size: size}
}

// Find returns the set representative of i.
func (uf *UnionFind) Find(i int) int {
	x := int32(i)
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return int(x)
}

// Union merges the sets of i and j.
func (uf *UnionFind) Union(i, j int) {
	ri, rj := uf.Find(i), uf.Find(j)
	if ri == rj {
		return
	}
	if uf.size[ri] < uf.size[rj] {
		ri, rj = rj, ri
	}
	uf.parent[rj] = int32(ri)
	uf.size[ri] += uf.size[rj]
}

// Connected checks whether i and j share a set.
func (uf *UnionFind) Connected(i, j int) bool {
	return uf.Find(i) == uf.Find(j)
}

// SetSize returns the size of the set containing i.
func (uf *UnionFind) SetSize(i int) int {
	return int(uf.size[uf.Find(i)])
}

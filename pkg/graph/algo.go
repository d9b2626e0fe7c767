package graph

// VisitedSet holds one flag per vertex for a single timing pass.
type VisitedSet []bool

// NewVisitedSet returns a cleared set for n vertices.
func NewVisitedSet(n int) VisitedSet {
	return make(VisitedSet, n)
}

// Count returns how many vertices are marked.
func (v VisitedSet) Count() int {
	c := 0
	for _, ok := range v {
		if ok {
			c++
		}
	}
	return c
}

// DFS walks the component of start with an explicit stack.
// A vertex may sit on the stack more than once; it is marked and expanded
// only the first time it is popped unvisited. Returns the number of
// vertices newly marked.
func DFS(g *Graph, start int, visited VisitedSet) int {
	if visited[start] {
		return 0
	}
	marked := 0
	stack := []int32{int32(start)}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node] {
			continue
		}
		visited[node] = true
		marked++

		for _, nbr := range g.Adj[node] {
			if !visited[nbr] {
				stack = append(stack, nbr)
			}
		}
	}
	return marked
}

// BFS walks the component of start level by level. Vertices are marked
// when enqueued, so each is queued at most once. Returns the number of
// vertices newly marked.
func BFS(g *Graph, start int, visited VisitedSet) int {
	if visited[start] {
		return 0
	}
	visited[start] = true
	queue := []int32{int32(start)}
	head := 0

	for head < len(queue) {
		node := queue[head]
		head++
		for _, nbr := range g.Adj[node] {
			if !visited[nbr] {
				visited[nbr] = true
				queue = append(queue, nbr)
			}
		}
	}
	return len(queue)
}

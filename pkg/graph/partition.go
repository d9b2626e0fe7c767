package graph

import "fmt"

// VertexRange is the half-open interval [Start, End) of vertex ids owned
// by one rank.
type VertexRange struct {
	Start int
	End   int
}

// Partition returns the contiguous range of rank out of size for n
// vertices: rank*n/size .. (rank+1)*n/size. Products are computed in 64
// bits so the ranges of all ranks tile [0, n) for any n and size.
func Partition(n, rank, size int) VertexRange {
	if size <= 0 || rank < 0 || rank >= size {
		panic(fmt.Sprintf("graph: invalid partition rank %d of %d", rank, size))
	}
	return VertexRange{
		Start: int(int64(rank) * int64(n) / int64(size)),
		End:   int(int64(rank+1) * int64(n) / int64(size)),
	}
}

// Len returns End-Start.
func (r VertexRange) Len() int {
	return r.End - r.Start
}

// Contains reports whether v lies in the range.
func (r VertexRange) Contains(v int) bool {
	return v >= r.Start && v < r.End
}

func (r VertexRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

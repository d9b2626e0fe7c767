package engine

import (
	"context"
	"fmt"

	"github.com/DrSkyle/graphbench/pkg/comm"
)

// Coordinator is the rank that generates broadcast graphs, receives
// reductions and owns the result table.
const Coordinator = 0

// Reduce returns the maximum of seconds over all ranks on the coordinator.
// Other ranks get their own value back and must not use it as a result.
func Reduce(ctx context.Context, c comm.Communicator, seconds float64) (float64, error) {
	v, err := c.ReduceMax(ctx, seconds, Coordinator)
	if err != nil {
		return 0, fmt.Errorf("reduce max: %w", err)
	}
	return v, nil
}

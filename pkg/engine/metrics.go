package engine

import (
	"context"

	"github.com/DrSkyle/graphbench/pkg/comm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	traversal   metric.Float64Histogram
	collectives metric.Int64Counter
}

func newInstruments(m metric.Meter) (*instruments, error) {
	traversal, err := m.Float64Histogram("graphbench.traversal.seconds",
		metric.WithDescription("Local traversal time of one rank for one pass"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	collectives, err := m.Int64Counter("graphbench.collectives",
		metric.WithDescription("Collective operations issued by a rank"),
	)
	if err != nil {
		return nil, err
	}
	return &instruments{traversal: traversal, collectives: collectives}, nil
}

func (in *instruments) recordPass(ctx context.Context, size int, mode Mode, s Sample) {
	in.traversal.Record(ctx, s.Seconds, metric.WithAttributes(
		attribute.String("mode", mode.String()),
		attribute.Int("graph.size", size),
	))
}

// countingComm counts every collective a rank issues.
type countingComm struct {
	comm.Communicator
	counter metric.Int64Counter
}

func (in *instruments) wrap(c comm.Communicator) comm.Communicator {
	return &countingComm{Communicator: c, counter: in.collectives}
}

func (c *countingComm) add(ctx context.Context, op string) {
	c.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (c *countingComm) Barrier(ctx context.Context) error {
	c.add(ctx, "barrier")
	return c.Communicator.Barrier(ctx)
}

func (c *countingComm) BroadcastInt(ctx context.Context, v int, root int) (int, error) {
	c.add(ctx, "bcast_int")
	return c.Communicator.BroadcastInt(ctx, v, root)
}

func (c *countingComm) BroadcastInt32s(ctx context.Context, vals []int32, root int) ([]int32, error) {
	c.add(ctx, "bcast_ints")
	return c.Communicator.BroadcastInt32s(ctx, vals, root)
}

func (c *countingComm) ReduceMax(ctx context.Context, v float64, root int) (float64, error) {
	c.add(ctx, "reduce_max")
	return c.Communicator.ReduceMax(ctx, v, root)
}

package comm

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// hub is the rendezvous shared by the members of an in-process world.
// Each collective is one round: every rank deposits a contribution and the
// last arrival releases everyone.
type hub struct {
	size int

	mu     sync.Mutex
	cur    *round
	closed bool
}

type round struct {
	op       string
	root     int
	arrived  int
	contribs []any
	done     chan struct{}
	err      error
}

func (h *hub) exchange(ctx context.Context, rank int, op string, root int, value any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	r := h.cur
	if r == nil {
		r = &round{
			op:       op,
			root:     root,
			contribs: make([]any, h.size),
			done:     make(chan struct{}),
		}
		h.cur = r
	}
	if r.err == nil && (r.op != op || r.root != root) {
		r.err = fmt.Errorf("%w: rank %d called %s(root=%d) while round is %s(root=%d)",
			ErrCollectiveMismatch, rank, op, root, r.op, r.root)
	}
	r.contribs[rank] = value
	r.arrived++
	if r.arrived == h.size {
		h.cur = nil
		close(r.done)
	}
	h.mu.Unlock()

	select {
	case <-r.done:
		if r.err != nil {
			return nil, r.err
		}
		return r.contribs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// LocalComm is one member of an in-process world. Ranks are expected to run
// on separate goroutines.
type LocalComm struct {
	rank int
	hub  *hub
	once sync.Once
}

// NewWorld creates size communicators sharing one rendezvous.
func NewWorld(size int) []*LocalComm {
	if size < 1 {
		panic(fmt.Sprintf("comm: world size %d", size))
	}
	h := &hub{size: size}
	world := make([]*LocalComm, size)
	for rank := range world {
		world[rank] = &LocalComm{rank: rank, hub: h}
	}
	return world
}

func (c *LocalComm) Rank() int { return c.rank }
func (c *LocalComm) Size() int { return c.hub.size }

func (c *LocalComm) Barrier(ctx context.Context) error {
	_, err := c.hub.exchange(ctx, c.rank, opBarrier, 0, nil)
	return err
}

func (c *LocalComm) BroadcastInt(ctx context.Context, v int, root int) (int, error) {
	if err := checkRoot(root, c.Size()); err != nil {
		return 0, err
	}
	vals, err := c.hub.exchange(ctx, c.rank, opBcastInt, root, v)
	if err != nil {
		return 0, err
	}
	return vals[root].(int), nil
}

func (c *LocalComm) BroadcastInt32s(ctx context.Context, vals []int32, root int) ([]int32, error) {
	if err := checkRoot(root, c.Size()); err != nil {
		return nil, err
	}
	all, err := c.hub.exchange(ctx, c.rank, opBcastInts, root, vals)
	if err != nil {
		return nil, err
	}
	if c.rank == root {
		return vals, nil
	}
	// Receivers own their copy; the root keeps mutating rights over its slice.
	return slices.Clone(all[root].([]int32)), nil
}

func (c *LocalComm) ReduceMax(ctx context.Context, v float64, root int) (float64, error) {
	if err := checkRoot(root, c.Size()); err != nil {
		return 0, err
	}
	all, err := c.hub.exchange(ctx, c.rank, opReduceMax, root, v)
	if err != nil {
		return 0, err
	}
	if c.rank != root {
		return v, nil
	}
	m := all[0].(float64)
	for _, x := range all[1:] {
		m = max(m, x.(float64))
	}
	return m, nil
}

// Close detaches the whole world: later collectives on any member fail
// with ErrClosed. Rounds already in flight still complete.
func (c *LocalComm) Close() error {
	c.once.Do(c.hub.close)
	return nil
}

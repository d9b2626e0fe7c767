package comm

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RankFunc is the body executed by every rank of a group.
type RankFunc func(ctx context.Context, c Communicator) error

// Launch runs fn once per rank of a fresh in-process world of the given
// size, each on its own goroutine, and waits for all of them. The first
// failing rank cancels the context handed to the others so that peers
// blocked in a collective return instead of stalling.
func Launch(ctx context.Context, size int, fn RankFunc) error {
	if err := checkMember(0, size); err != nil {
		return err
	}
	world := NewWorld(size)

	g, gCtx := errgroup.WithContext(ctx)
	for _, c := range world {
		g.Go(func() error {
			return fn(gCtx, c)
		})
	}
	err := g.Wait()
	world[0].Close()
	return err
}

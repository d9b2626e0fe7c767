// Package comm provides the collective operations graphbench ranks use to
// cooperate: barrier, broadcast from a root, and MAX reduction to a root.
//
// Every collective is synchronous. All ranks of a group must issue the same
// collectives in the same order; a rank that diverges stalls or, with the
// bundled transports, fails the whole group with ErrCollectiveMismatch.
package comm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCollectiveMismatch reports that ranks issued different collectives
	// (operation, root or sequence) in the same round.
	ErrCollectiveMismatch = errors.New("collective mismatch")
	// ErrInvalidGroup reports an impossible rank, root or group size.
	ErrInvalidGroup = errors.New("invalid communicator group")
	// ErrClosed is returned by collectives on a closed communicator.
	ErrClosed = errors.New("communicator closed")
)

// Communicator is the message-passing capability handed to every component
// that synchronizes with other ranks.
type Communicator interface {
	// Rank is this participant's zero-based id.
	Rank() int
	// Size is the fixed number of participants.
	Size() int
	// Barrier blocks until every rank has called it.
	Barrier(ctx context.Context) error
	// BroadcastInt returns root's value on every rank.
	BroadcastInt(ctx context.Context, v int, root int) (int, error)
	// BroadcastInt32s returns a copy of root's slice on every rank. Non-root
	// ranks may pass nil.
	BroadcastInt32s(ctx context.Context, vals []int32, root int) ([]int32, error)
	// ReduceMax returns the maximum of all ranks' values on root. Other ranks
	// get their own value back.
	ReduceMax(ctx context.Context, v float64, root int) (float64, error)
	// Close releases transport resources.
	Close() error
}

const (
	opHello     = "hello"
	opBarrier   = "barrier"
	opBcastInt  = "bcast_int"
	opBcastInts = "bcast_ints"
	opReduceMax = "reduce_max"
)

func checkRoot(root, size int) error {
	if root < 0 || root >= size {
		return fmt.Errorf("%w: root %d outside group of %d", ErrInvalidGroup, root, size)
	}
	return nil
}

func checkMember(rank, size int) error {
	if size < 1 {
		return fmt.Errorf("%w: size %d", ErrInvalidGroup, size)
	}
	if rank < 0 || rank >= size {
		return fmt.Errorf("%w: rank %d outside group of %d", ErrInvalidGroup, rank, size)
	}
	return nil
}

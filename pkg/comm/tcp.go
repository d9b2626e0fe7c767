package comm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// frame is the single message shape of the TCP transport. Workers send one
// frame per collective to the coordinator and read one frame back.
type frame struct {
	Seq   uint64  `msgpack:"seq"`
	Op    string  `msgpack:"op"`
	Root  int     `msgpack:"root"`
	Rank  int     `msgpack:"rank"`
	Size  int     `msgpack:"size,omitempty"`
	Token string  `msgpack:"token,omitempty"`
	Int   int64   `msgpack:"int,omitempty"`
	Ints  []int32 `msgpack:"ints,omitempty"`
	Float float64 `msgpack:"float,omitempty"`
	Err   string  `msgpack:"err,omitempty"`
}

type options struct {
	token        string
	logger       *slog.Logger
	dialBackoff  time.Duration
	helloTimeout time.Duration
}

// Option configures the TCP transport.
type Option func(*options)

// WithToken requires workers to present a shared secret when joining.
func WithToken(token string) Option {
	return func(o *options) {
		o.token = token
	}
}

// WithLogger sets the logger used for join/leave events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithDialBackoff sets the initial delay between dial attempts.
func WithDialBackoff(d time.Duration) Option {
	return func(o *options) {
		o.dialBackoff = d
	}
}

// WithHelloTimeout bounds how long the coordinator waits for a connected
// peer to introduce itself.
func WithHelloTimeout(d time.Duration) Option {
	return func(o *options) {
		o.helloTimeout = d
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), dialBackoff: 100 * time.Millisecond, helloTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type peer struct {
	conn net.Conn
	w    *bufio.Writer
	enc  *msgpack.Encoder
	dec  *msgpack.Decoder
}

func newPeer(conn net.Conn) *peer {
	w := bufio.NewWriter(conn)
	return &peer{
		conn: conn,
		w:    w,
		enc:  msgpack.NewEncoder(w),
		dec:  msgpack.NewDecoder(bufio.NewReader(conn)),
	}
}

func (p *peer) send(f *frame) error {
	if err := p.enc.Encode(f); err != nil {
		return err
	}
	return p.w.Flush()
}

func (p *peer) recv() (*frame, error) {
	var f frame
	if err := p.dec.Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Coordinator accepts the workers of a TCP group on behalf of rank 0.
type Coordinator struct {
	ln   net.Listener
	size int
	opts options
}

// Listen binds addr for a group of size ranks.
func Listen(addr string, size int, opts ...Option) (*Coordinator, error) {
	if err := checkMember(0, size); err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Coordinator{ln: ln, size: size, opts: buildOptions(opts)}, nil
}

// Addr returns the bound address.
func (c *Coordinator) Addr() net.Addr {
	return c.ln.Addr()
}

// Accept blocks until every worker rank 1..size-1 has joined and returns
// the rank-0 communicator. The listener is closed afterwards.
func (c *Coordinator) Accept(ctx context.Context) (*TCPComm, error) {
	defer c.ln.Close()

	// pending is the accepted conn whose hello is still outstanding.
	var mu sync.Mutex
	var pending net.Conn
	stop := context.AfterFunc(ctx, func() {
		c.ln.Close()
		mu.Lock()
		defer mu.Unlock()
		if pending != nil {
			pending.Close()
		}
	})
	defer stop()

	peers := make([]*peer, c.size)
	joined := 1
	for joined < c.size {
		conn, err := c.ln.Accept()
		if err != nil {
			closePeers(peers)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("accept: %w", err)
		}

		mu.Lock()
		pending = conn
		mu.Unlock()

		// A cancel that fired before pending was set found nothing to close.
		var hello *frame
		p := newPeer(conn)
		if ctx.Err() == nil {
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.helloTimeout))
			hello, err = p.recv()
			_ = conn.SetReadDeadline(time.Time{})
		}

		mu.Lock()
		pending = nil
		mu.Unlock()

		if ctx.Err() != nil {
			conn.Close()
			closePeers(peers)
			return nil, ctx.Err()
		}
		if err != nil {
			c.opts.logger.Warn("Dropping peer without hello", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			continue
		}
		if reason := c.admit(hello, peers); reason != "" {
			c.opts.logger.Warn("Rejecting peer", "remote", conn.RemoteAddr().String(), "rank", hello.Rank, "reason", reason)
			_ = p.send(&frame{Op: opHello, Err: reason})
			conn.Close()
			continue
		}
		if err := p.send(&frame{Op: opHello, Rank: 0, Size: c.size}); err != nil {
			conn.Close()
			continue
		}
		peers[hello.Rank] = p
		joined++
		c.opts.logger.Debug("Rank joined", "rank", hello.Rank, "joined", joined, "size", c.size)
	}

	return &TCPComm{rank: 0, size: c.size, peers: peers}, nil
}

func (c *Coordinator) admit(hello *frame, peers []*peer) string {
	switch {
	case hello.Op != opHello:
		return fmt.Sprintf("expected hello, got %s", hello.Op)
	case hello.Token != c.opts.token:
		return "bad token"
	case hello.Size != c.size:
		return fmt.Sprintf("group size %d, coordinator expects %d", hello.Size, c.size)
	case hello.Rank < 1 || hello.Rank >= c.size:
		return fmt.Sprintf("rank %d outside 1..%d", hello.Rank, c.size-1)
	case peers[hello.Rank] != nil:
		return fmt.Sprintf("rank %d already joined", hello.Rank)
	}
	return ""
}

// Dial joins the group hosted at addr as a worker rank. It retries until the
// coordinator is reachable or ctx ends.
func Dial(ctx context.Context, addr string, rank, size int, opts ...Option) (*TCPComm, error) {
	if err := checkMember(rank, size); err != nil {
		return nil, err
	}
	if rank == 0 {
		return nil, fmt.Errorf("%w: rank 0 must Listen, not Dial", ErrInvalidGroup)
	}
	o := buildOptions(opts)

	var d net.Dialer
	backoff := o.dialBackoff
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			p := newPeer(conn)
			if err := handshake(p, rank, size, o.token); err != nil {
				conn.Close()
				return nil, err
			}
			o.logger.Debug("Joined group", "coordinator", addr, "rank", rank, "size", size)
			return &TCPComm{rank: rank, size: size, peers: []*peer{p}}, nil
		}

		o.logger.Debug("Coordinator not reachable yet", "coordinator", addr, "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 2*time.Second)
	}
}

func handshake(p *peer, rank, size int, token string) error {
	if err := p.send(&frame{Op: opHello, Rank: rank, Size: size, Token: token}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	ack, err := p.recv()
	if err != nil {
		return fmt.Errorf("read hello ack: %w", err)
	}
	if ack.Err != "" {
		return fmt.Errorf("%w: coordinator rejected rank %d: %s", ErrInvalidGroup, rank, ack.Err)
	}
	return nil
}

// TCPComm is a member of a TCP star group. Rank 0 holds one connection per
// worker and relays every collective; workers hold one connection to rank 0.
type TCPComm struct {
	rank, size int
	seq        uint64
	peers      []*peer // rank 0: indexed by worker rank; workers: [0] is the coordinator

	mu     sync.Mutex
	closed bool
}

func (c *TCPComm) Rank() int { return c.rank }
func (c *TCPComm) Size() int { return c.size }

func (c *TCPComm) Barrier(ctx context.Context) error {
	_, err := c.collective(ctx, &frame{Op: opBarrier})
	return err
}

func (c *TCPComm) BroadcastInt(ctx context.Context, v int, root int) (int, error) {
	if err := checkRoot(root, c.size); err != nil {
		return 0, err
	}
	out, err := c.collective(ctx, &frame{Op: opBcastInt, Root: root, Int: int64(v)})
	if err != nil {
		return 0, err
	}
	return int(out.Int), nil
}

func (c *TCPComm) BroadcastInt32s(ctx context.Context, vals []int32, root int) ([]int32, error) {
	if err := checkRoot(root, c.size); err != nil {
		return nil, err
	}
	f := &frame{Op: opBcastInts, Root: root}
	if c.rank == root {
		f.Ints = vals
	}
	out, err := c.collective(ctx, f)
	if err != nil {
		return nil, err
	}
	if c.rank == root {
		return vals, nil
	}
	if out.Ints == nil {
		return []int32{}, nil
	}
	return out.Ints, nil
}

func (c *TCPComm) ReduceMax(ctx context.Context, v float64, root int) (float64, error) {
	if err := checkRoot(root, c.size); err != nil {
		return 0, err
	}
	out, err := c.collective(ctx, &frame{Op: opReduceMax, Root: root, Float: v})
	if err != nil {
		return 0, err
	}
	if c.rank != root {
		return v, nil
	}
	return out.Float, nil
}

// collective runs one round. Workers send their contribution and wait for
// the result; rank 0 gathers every contribution in rank order, combines
// them and scatters the result.
func (c *TCPComm) collective(ctx context.Context, f *frame) (*frame, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	c.seq++
	f.Seq = c.seq
	f.Rank = c.rank

	stop := context.AfterFunc(ctx, c.interrupt)
	defer stop()

	var out *frame
	var err error
	if c.rank == 0 {
		out, err = c.relay(f)
	} else {
		out, err = c.exchange(f)
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, err
}

func (c *TCPComm) exchange(f *frame) (*frame, error) {
	hub := c.peers[0]
	if err := hub.send(f); err != nil {
		return nil, fmt.Errorf("%s #%d send: %w", f.Op, f.Seq, err)
	}
	out, err := hub.recv()
	if err != nil {
		return nil, fmt.Errorf("%s #%d recv: %w", f.Op, f.Seq, err)
	}
	if out.Err != "" {
		return nil, fmt.Errorf("%w: %s", ErrCollectiveMismatch, out.Err)
	}
	if out.Seq != f.Seq || out.Op != f.Op {
		return nil, fmt.Errorf("%w: sent %s #%d, coordinator answered %s #%d",
			ErrCollectiveMismatch, f.Op, f.Seq, out.Op, out.Seq)
	}
	return out, nil
}

func (c *TCPComm) relay(own *frame) (*frame, error) {
	contribs := make([]*frame, c.size)
	contribs[0] = own
	for r := 1; r < c.size; r++ {
		in, err := c.peers[r].recv()
		if err != nil {
			return nil, fmt.Errorf("%s #%d recv from rank %d: %w", own.Op, own.Seq, r, err)
		}
		if in.Seq != own.Seq || in.Op != own.Op || in.Root != own.Root {
			reason := fmt.Sprintf("rank %d sent %s(root=%d) #%d, rank 0 is in %s(root=%d) #%d",
				r, in.Op, in.Root, in.Seq, own.Op, own.Root, own.Seq)
			c.broadcastErr(own, reason)
			return nil, fmt.Errorf("%w: %s", ErrCollectiveMismatch, reason)
		}
		contribs[r] = in
	}

	out := &frame{Seq: own.Seq, Op: own.Op, Root: own.Root}
	switch own.Op {
	case opBcastInt:
		out.Int = contribs[own.Root].Int
	case opBcastInts:
		out.Ints = contribs[own.Root].Ints
	case opReduceMax:
		out.Float = contribs[0].Float
		for _, in := range contribs[1:] {
			out.Float = max(out.Float, in.Float)
		}
	}

	for r := 1; r < c.size; r++ {
		reply := out
		// Only the root needs the reduced value; the others get an ack.
		if own.Op == opReduceMax && r != own.Root {
			reply = &frame{Seq: out.Seq, Op: out.Op, Root: out.Root}
		}
		// Do not echo a payload back to the rank that supplied it.
		if own.Op == opBcastInts && r == own.Root {
			reply = &frame{Seq: out.Seq, Op: out.Op, Root: out.Root}
		}
		if err := c.peers[r].send(reply); err != nil {
			return nil, fmt.Errorf("%s #%d send to rank %d: %w", own.Op, own.Seq, r, err)
		}
	}
	return out, nil
}

func (c *TCPComm) broadcastErr(own *frame, reason string) {
	for r := 1; r < c.size; r++ {
		_ = c.peers[r].send(&frame{Seq: own.Seq, Op: own.Op, Err: reason})
	}
}

// interrupt unblocks pending reads and writes after the caller's context ends.
func (c *TCPComm) interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, p := range c.peers {
		if p != nil {
			_ = p.conn.SetDeadline(time.Now())
		}
	}
}

func (c *TCPComm) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, p := range c.peers {
		if p != nil {
			errs = append(errs, p.conn.Close())
		}
	}
	return errors.Join(errs...)
}

func closePeers(peers []*peer) {
	for _, p := range peers {
		if p != nil {
			p.conn.Close()
		}
	}
}

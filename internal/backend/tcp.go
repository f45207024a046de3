package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// Compile-time check: TCP implements Backend.
var _ Backend = (*TCP)(nil)

// Config holds connection parameters shared by TCP backends.
type Config struct {
	DialTimeout time.Duration
	MaxIdle     int // idle connections kept per backend
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = time.Second
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = 8
	}
	return c
}

// TCP is a backend reached over plain TCP. Connections are dialed lazily and
// kept idle between channels.
type TCP struct {
	addr   string
	cfg    Config
	logger *zap.Logger
	dialer net.Dialer
	nextID atomic.Uint32

	mu     sync.Mutex
	idle   []net.Conn
	closed bool
}

// NewTCP creates a backend for host:port. No connection is made until the
// first channel is opened.
func NewTCP(host string, port int, cfg Config, logger *zap.Logger) *TCP {
	cfg = cfg.withDefaults()
	return &TCP{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		cfg:    cfg,
		logger: logger.With(zap.String("backend", net.JoinHostPort(host, strconv.Itoa(port)))),
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}
}

// Name returns host:port.
func (b *TCP) Name() string { return b.addr }

// OpenChannel opens a channel on an idle or newly dialed connection.
func (b *TCP) OpenChannel(ctx context.Context) (Channel, error) {
	conn, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return b.newChannel(conn, true), nil
}

// OpenPingChannel opens a channel on a fresh connection that is closed with it.
func (b *TCP) OpenPingChannel(ctx context.Context) (Channel, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	return b.newChannel(conn, false), nil
}

// Close closes all idle connections. Channels still open close their
// connection instead of returning it.
func (b *TCP) Close() error {
	b.mu.Lock()
	idle := b.idle
	b.idle = nil
	b.closed = true
	b.mu.Unlock()

	var errs []error
	for _, c := range idle {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func (b *TCP) newChannel(conn net.Conn, pooled bool) *tcpChannel {
	return &tcpChannel{
		backend: b,
		conn:    conn,
		id:      b.nextID.Add(1),
		pooled:  pooled,
	}
}

func (b *TCP) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *TCP) acquire(ctx context.Context) (net.Conn, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(b.idle); n > 0 {
		conn := b.idle[n-1]
		b.idle = b.idle[:n-1]
		b.mu.Unlock()
		return conn, nil
	}
	b.mu.Unlock()
	return b.dial(ctx)
}

func (b *TCP) dial(ctx context.Context) (net.Conn, error) {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctxErr(ctx.Err())
		}
		return nil, fmt.Errorf("dial %s: %w", b.addr, err)
	}
	b.logger.Debug("dialed backend")
	return conn, nil
}

func (b *TCP) release(conn net.Conn) {
	b.mu.Lock()
	if !b.closed && len(b.idle) < b.cfg.MaxIdle {
		b.idle = append(b.idle, conn)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	_ = conn.Close()
}

type tcpChannel struct {
	backend *TCP
	conn    net.Conn
	id      uint32
	pooled  bool

	sent   bool
	closed bool
	broken bool
}

func (c *tcpChannel) Send(ctx context.Context, p packet.Packet) error {
	switch {
	case c.closed || c.broken:
		return ErrInvalidChannel
	case c.sent:
		return ErrIllegalState
	}
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}

	stop := c.bind(ctx)
	err := packet.Write(c.conn, p, c.id)
	stop()
	if err != nil {
		c.broken = true
		if cerr := c.classify(ctx, err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %v", ErrSendRejected, err)
	}
	c.sent = true
	return nil
}

func (c *tcpChannel) Receive(ctx context.Context, count int) ([]packet.Packet, error) {
	switch {
	case c.closed || c.broken:
		return nil, ErrInvalidChannel
	case !c.sent:
		return nil, ErrIllegalState
	}
	c.sent = false
	if err := ctx.Err(); err != nil {
		c.broken = true
		return nil, ctxErr(err)
	}

	stop := c.bind(ctx)
	defer stop()

	out := make([]packet.Packet, 0, count)
	for len(out) < count {
		p, channel, err := packet.Read(c.conn)
		if err != nil {
			c.broken = true
			if cerr := c.classify(ctx, err); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("receive from %s: %w", c.backend.addr, err)
		}
		if channel != c.id {
			c.backend.logger.Debug("dropping packet for another channel",
				zap.Uint32("channel", channel), zap.Uint32("want", c.id))
			continue
		}
		out = append(out, p)
		if p.Code() == packet.CodeEOL {
			break
		}
	}
	return out, nil
}

func (c *tcpChannel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pooled && !c.broken && !c.sent {
		c.backend.release(c.conn)
		return nil
	}
	return c.conn.Close()
}

// bind applies ctx's deadline to the connection and interrupts blocked I/O
// when ctx is cancelled. The returned func undoes both.
func (c *tcpChannel) bind(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		_ = c.conn.SetDeadline(time.Time{})
	}
}

// classify maps I/O errors caused by ctx or deadlines to ErrTimeout or the
// ctx error. It returns nil for other errors.
func (c *tcpChannel) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctxErr(ctx.Err())
	}
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return ErrTimeout
	}
	return nil
}

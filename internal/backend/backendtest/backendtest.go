// Package backendtest provides in-memory backends for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// Responder produces the reply to one sent packet.
type Responder func(p packet.Packet) ([]packet.Packet, error)

// Backend is an in-memory backend that records every packet sent to it.
type Backend struct {
	name    string
	respond Responder

	// OpenErr and SendErr, when set, fail the corresponding operation.
	OpenErr error
	SendErr error

	mu     sync.Mutex
	sent   []packet.Packet
	opened int
	closed int
}

// New creates a backend answering with respond.
func New(name string, respond Responder) *Backend {
	return &Backend{name: name, respond: respond}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return b.name }

// OpenChannel implements backend.Backend.
func (b *Backend) OpenChannel(context.Context) (backend.Channel, error) {
	return b.open()
}

// OpenPingChannel implements backend.Backend.
func (b *Backend) OpenPingChannel(context.Context) (backend.Channel, error) {
	return b.open()
}

func (b *Backend) open() (backend.Channel, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	b.mu.Lock()
	b.opened++
	b.mu.Unlock()
	return &channel{backend: b}, nil
}

// Sent returns the packets sent so far.
func (b *Backend) Sent() []packet.Packet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]packet.Packet(nil), b.sent...)
}

// SentCount returns how many packets with code were sent.
func (b *Backend) SentCount(code packet.Code) int {
	n := 0
	for _, p := range b.Sent() {
		if p.Code() == code {
			n++
		}
	}
	return n
}

// OpenChannels returns how many channels are open.
func (b *Backend) OpenChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened - b.closed
}

// Reset forgets sent packets.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = nil
}

type channel struct {
	backend *Backend
	pending packet.Packet
	closed  bool
}

func (c *channel) Send(_ context.Context, p packet.Packet) error {
	switch {
	case c.closed:
		return backend.ErrInvalidChannel
	case c.pending != nil:
		return backend.ErrIllegalState
	case c.backend.SendErr != nil:
		return c.backend.SendErr
	}
	c.backend.mu.Lock()
	c.backend.sent = append(c.backend.sent, p)
	c.backend.mu.Unlock()
	c.pending = p
	return nil
}

func (c *channel) Receive(ctx context.Context, count int) ([]packet.Packet, error) {
	switch {
	case c.closed:
		return nil, backend.ErrInvalidChannel
	case c.pending == nil:
		return nil, backend.ErrIllegalState
	}
	p := c.pending
	c.pending = nil
	if err := ctx.Err(); err != nil {
		return nil, backend.ErrTimeout
	}

	reply, err := c.backend.respond(p)
	if err != nil {
		return nil, err
	}
	out := make([]packet.Packet, 0, count)
	for _, r := range reply {
		if len(out) == count {
			break
		}
		out = append(out, r)
		if r.Code() == packet.CodeEOL {
			break
		}
	}
	return out, nil
}

func (c *channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.backend.mu.Lock()
	c.backend.closed++
	c.backend.mu.Unlock()
	return nil
}

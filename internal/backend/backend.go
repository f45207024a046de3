// Package backend provides channels to backend search nodes.
//
// A Channel is one strict request/response exchange: Send once, Receive once,
// then either Send again or Close. Channels are never shared between
// goroutines.
package backend

import (
	"context"
	"errors"

	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

var (
	// ErrSendRejected is returned when the channel could not hand the packet to the network.
	ErrSendRejected = errors.New("backend: send rejected")
	// ErrInvalidChannel is returned for use of a closed or broken channel.
	ErrInvalidChannel = errors.New("backend: invalid channel")
	// ErrIllegalState is returned for Send after Send, or Receive before Send.
	ErrIllegalState = errors.New("backend: illegal channel state")
	// ErrTimeout is returned when the context deadline expires mid-exchange.
	ErrTimeout = errors.New("backend: timeout")
	// ErrClosed is returned when opening a channel on a closed backend.
	ErrClosed = errors.New("backend: closed")
)

// Channel is a single request/response session with a backend.
type Channel interface {
	// Send writes one packet. It may not be called again before Receive.
	Send(ctx context.Context, p packet.Packet) error
	// Receive reads up to count packets, stopping early after an EOL packet,
	// which is included in the returned slice.
	Receive(ctx context.Context, count int) ([]packet.Packet, error)
	// Close releases the channel. It is safe to call more than once.
	Close() error
}

// Backend opens channels to one network endpoint.
type Backend interface {
	Name() string
	OpenChannel(ctx context.Context) (Channel, error)
	// OpenPingChannel opens a channel on a dedicated connection that does not
	// compete with search traffic.
	OpenPingChannel(ctx context.Context) (Channel, error)
}

func ctxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

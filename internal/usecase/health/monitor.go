package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// Ping counter label values.
const (
	PingOK    = "ok"
	PingError = "error"
)

// Monitor pings backends on dedicated channels.
type Monitor struct {
	observer docstampObserver
	pings    *prometheus.CounterVec
	logger   *zap.Logger
}

// NewMonitor creates a monitor. observer and pings (labelled "status") are
// optional.
func NewMonitor(observer docstampObserver, pings *prometheus.CounterVec, logger *zap.Logger) *Monitor {
	return &Monitor{observer: observer, pings: pings, logger: logger}
}

// Ping sends one ping to b and waits up to timeout for the pong. Every
// failure is recorded on the returned Pong.
func (m *Monitor) Ping(ctx context.Context, b backend.Backend, timeout time.Duration) *Pong {
	pong := m.ping(ctx, b, timeout)

	status := PingOK
	if !pong.OK() {
		status = PingError
		m.logger.Warn("ping failed", zap.String("backend", b.Name()), zap.Stringer("pong", pong))
	} else if d, ok := pong.Docstamp(); ok && m.observer != nil {
		m.observer.ObserveDocstamp(d)
	}
	if m.pings != nil {
		m.pings.WithLabelValues(status).Inc()
	}
	return pong
}

func (m *Monitor) ping(ctx context.Context, b backend.Backend, timeout time.Duration) *Pong {
	name := b.Name()
	pong := NewPong(name)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, err := b.OpenPingChannel(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrTimeout) {
			pong.AddError(result.NewNoAnswerWhenPinging("timeout while connecting to " + name))
		} else {
			pong.AddError(result.NewBackendCommunicationError(fmt.Sprintf("Could not open ping channel to %s: %v", name, err)))
		}
		return pong
	}
	defer ch.Close()

	ping := &packet.Ping{Features: packet.PingFeatureActiveDocs}
	if err := ch.Send(ctx, ping); err != nil {
		pong.AddError(sendError(name, err))
		return pong
	}

	packets, err := ch.Receive(ctx, 1)
	switch {
	case errors.Is(err, backend.ErrTimeout):
		pong.AddError(result.NewNoAnswerWhenPinging("timeout while waiting for " + name))
		return pong
	case errors.Is(err, backend.ErrInvalidChannel):
		pong.AddError(result.NewBackendCommunicationError("Invalid channel for " + name))
		return pong
	case err != nil:
		pong.AddError(result.NewBackendCommunicationError("IO error while receiving pong: " + err.Error()))
		return pong
	}

	if len(packets) == 0 {
		pong.AddError(result.NewBackendCommunicationError(name + " got no packets back"))
		return pong
	}
	pp, err := packet.As[*packet.Pong](packets[0])
	if err != nil {
		pong.AddError(result.NewBackendCommunicationError("Unexpected packet class returned after ping: " + err.Error()))
		return pong
	}

	pong.AddPacket(pp)
	for _, msg := range pp.Errors {
		pong.AddError(result.NewServerMisconfigured(msg))
	}
	return pong
}

func sendError(name string, err error) result.ErrorMessage {
	switch {
	case errors.Is(err, backend.ErrTimeout):
		return result.NewNoAnswerWhenPinging("timeout while sending ping to " + name)
	case errors.Is(err, backend.ErrSendRejected):
		return result.NewBackendCommunicationError("Could not ping in " + name)
	case errors.Is(err, backend.ErrInvalidChannel):
		return result.NewBackendCommunicationError("Invalid channel " + name)
	case errors.Is(err, backend.ErrIllegalState):
		return result.NewBackendCommunicationError("Illegal state: " + err.Error())
	default:
		return result.NewBackendCommunicationError("IO error while sending ping: " + err.Error())
	}
}

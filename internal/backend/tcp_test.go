package backend

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// testServer answers every packet with whatever handler returns, on the
// request's channel. A nil reply means "stay silent".
type testServer struct {
	ln       net.Listener
	accepted atomic.Int32
	handler  func(packet.Packet) []packet.Packet

	wg sync.WaitGroup
}

func newTestServer(t *testing.T, handler func(packet.Packet) []packet.Packet) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &testServer{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *testServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			for {
				p, channel, err := packet.Read(conn)
				if err != nil {
					return
				}
				for _, reply := range s.handler(p) {
					if err := packet.Write(conn, reply, channel); err != nil {
						return
					}
				}
			}
		}()
	}
}

func (s *testServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func newBackend(t *testing.T, s *testServer) *TCP {
	t.Helper()
	host, port := s.hostPort(t)
	b := NewTCP(host, port, Config{DialTimeout: time.Second}, zap.NewNop())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func pongHandler(p packet.Packet) []packet.Packet {
	switch p.(type) {
	case *packet.Ping:
		return []packet.Packet{&packet.Pong{Docstamp: 127}}
	case *packet.GetDocsums:
		return []packet.Packet{&packet.Docsum{}, &packet.Docsum{}, &packet.EOL{}}
	default:
		return nil
	}
}

func TestChannel_SendReceive(t *testing.T) {
	b := newBackend(t, newTestServer(t, pongHandler))
	ctx := context.Background()

	ch, err := b.OpenChannel(ctx)
	if err != nil {
		t.Fatalf("OpenChannel: %v", err)
	}
	defer ch.Close()

	if err := ch.Send(ctx, &packet.Ping{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := ch.Receive(ctx, 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d packets, want 1", len(got))
	}
	pong, err := packet.As[*packet.Pong](got[0])
	if err != nil {
		t.Fatal(err)
	}
	if pong.Docstamp != 127 {
		t.Errorf("docstamp = %d, want 127", pong.Docstamp)
	}
}

func TestChannel_ReceiveStopsAtEOL(t *testing.T) {
	b := newBackend(t, newTestServer(t, pongHandler))
	ctx := context.Background()

	ch, err := b.OpenChannel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	if err := ch.Send(ctx, &packet.GetDocsums{}); err != nil {
		t.Fatal(err)
	}
	got, err := ch.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(got) != 3 || got[2].Code() != packet.CodeEOL {
		t.Errorf("got %d packets, want 2 docsums and EOL", len(got))
	}
}

func TestChannel_StateErrors(t *testing.T) {
	b := newBackend(t, newTestServer(t, pongHandler))
	ctx := context.Background()

	ch, err := b.OpenChannel(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ch.Receive(ctx, 1); !errors.Is(err, ErrIllegalState) {
		t.Errorf("Receive before Send: err = %v, want ErrIllegalState", err)
	}
	if err := ch.Send(ctx, &packet.Ping{}); err != nil {
		t.Fatal(err)
	}
	if err := ch.Send(ctx, &packet.Ping{}); !errors.Is(err, ErrIllegalState) {
		t.Errorf("Send after Send: err = %v, want ErrIllegalState", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := ch.Send(ctx, &packet.Ping{}); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("Send after Close: err = %v, want ErrInvalidChannel", err)
	}
	if _, err := ch.Receive(ctx, 1); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("Receive after Close: err = %v, want ErrInvalidChannel", err)
	}
}

func TestChannel_Timeout(t *testing.T) {
	silent := func(packet.Packet) []packet.Packet { return nil }
	b := newBackend(t, newTestServer(t, silent))

	ch, err := b.OpenChannel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := ch.Send(ctx, &packet.Ping{}); err != nil {
		t.Fatal(err)
	}
	if _, err := ch.Receive(ctx, 1); !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
	if err := ch.Send(context.Background(), &packet.Ping{}); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("reuse after timeout: err = %v, want ErrInvalidChannel", err)
	}
}

func TestTCP_ReusesIdleConnections(t *testing.T) {
	s := newTestServer(t, pongHandler)
	b := newBackend(t, s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ch, err := b.OpenChannel(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if err := ch.Send(ctx, &packet.Ping{}); err != nil {
			t.Fatal(err)
		}
		if _, err := ch.Receive(ctx, 1); err != nil {
			t.Fatal(err)
		}
		_ = ch.Close()
	}

	if got := s.accepted.Load(); got != 1 {
		t.Errorf("accepted %d connections, want 1", got)
	}
}

func TestTCP_PingChannelIsDedicated(t *testing.T) {
	s := newTestServer(t, pongHandler)
	b := newBackend(t, s)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ch, err := b.OpenPingChannel(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if err := ch.Send(ctx, &packet.Ping{}); err != nil {
			t.Fatal(err)
		}
		if _, err := ch.Receive(ctx, 1); err != nil {
			t.Fatal(err)
		}
		_ = ch.Close()
	}

	b.mu.Lock()
	idle := len(b.idle)
	b.mu.Unlock()
	if idle != 0 {
		t.Errorf("%d idle connections, want ping connections closed", idle)
	}
}

func TestTCP_Closed(t *testing.T) {
	b := newBackend(t, newTestServer(t, pongHandler))
	_ = b.Close()

	if _, err := b.OpenChannel(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenChannel: err = %v, want ErrClosed", err)
	}
	if _, err := b.OpenPingChannel(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenPingChannel: err = %v, want ErrClosed", err)
	}
}

func TestPool_SharesBackends(t *testing.T) {
	p := NewPool(Config{}, zap.NewNop())
	defer p.Close()

	a := p.Backend("node1", 19100)
	if p.Backend("node1", 19100) != a {
		t.Error("same host:port returned a different backend")
	}
	if p.Backend("node2", 19100) == a {
		t.Error("different host returned the same backend")
	}
	if p.Len() != 2 {
		t.Errorf("Len = %d, want 2", p.Len())
	}
	if a.Name() != "node1:19100" {
		t.Errorf("Name = %q", a.Name())
	}
}

package backend

import (
	"errors"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// Pool hands out shared TCP backends keyed by host and port.
type Pool struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	backends map[string]*TCP
}

// NewPool creates an empty pool.
func NewPool(cfg Config, logger *zap.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		logger:   logger,
		backends: make(map[string]*TCP),
	}
}

// Backend returns the backend for host:port, creating it on first use.
func (p *Pool) Backend(host string, port int) Backend {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.backends[addr]; ok {
		return b
	}
	b := NewTCP(host, port, p.cfg, p.logger)
	p.backends[addr] = b
	return b
}

// Len returns the number of backends created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backends)
}

// Close closes every backend in the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	backends := p.backends
	p.backends = make(map[string]*TCP)
	p.mu.Unlock()

	var errs []error
	for _, b := range backends {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}

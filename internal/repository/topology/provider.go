package topology

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domtopo "github.com/kailas-cloud/fastdispatch/internal/domain/topology"
)

// Loader produces cluster snapshots.
type Loader interface {
	Load(ctx context.Context) (domtopo.Cluster, error)
}

// Static is a Loader over a fixed node list.
type Static []domtopo.Node

// Load implements Loader.
func (s Static) Load(context.Context) (domtopo.Cluster, error) {
	return domtopo.NewCluster(s), nil
}

// Provider serves the latest snapshot of a Loader. Readers never block on a
// refresh; a failed refresh keeps the previous snapshot.
type Provider struct {
	loader  Loader
	current atomic.Pointer[domtopo.Cluster]
	logger  *zap.Logger
}

// NewProvider creates a provider holding an empty cluster until the first
// Refresh.
func NewProvider(loader Loader, logger *zap.Logger) *Provider {
	p := &Provider{loader: loader, logger: logger}
	empty := domtopo.NewCluster(nil)
	p.current.Store(&empty)
	return p
}

// Cluster returns the current snapshot.
func (p *Provider) Cluster() domtopo.Cluster {
	return *p.current.Load()
}

// Refresh loads a new snapshot.
func (p *Provider) Refresh(ctx context.Context) error {
	c, err := p.loader.Load(ctx)
	if err != nil {
		return err
	}
	old := p.current.Swap(&c)
	if old.Size() != c.Size() {
		p.logger.Info("topology changed", zap.Int("nodes_before", old.Size()), zap.Int("nodes", c.Size()))
	}
	return nil
}

// Run refreshes every interval until ctx is done.
func (p *Provider) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("topology refresh failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}

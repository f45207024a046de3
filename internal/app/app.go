// Package app assembles the dispatch components from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fastdispatch/internal/backend"
	"github.com/kailas-cloud/fastdispatch/internal/config"
	dbRedis "github.com/kailas-cloud/fastdispatch/internal/db/redis"
	"github.com/kailas-cloud/fastdispatch/internal/domain/docsum"
	"github.com/kailas-cloud/fastdispatch/internal/metrics"
	topologyrepo "github.com/kailas-cloud/fastdispatch/internal/repository/topology"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/cache"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/chain"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/dispatch"
	healthuc "github.com/kailas-cloud/fastdispatch/internal/usecase/health"
	"github.com/kailas-cloud/fastdispatch/internal/usecase/selection"
)

// App holds the assembled components.
type App struct {
	Config     config.Config
	Backend    backend.Backend
	Cache      *cache.Cache
	Topology   *topologyrepo.Provider
	Nodes      *topologyrepo.Repo // nil for static topology
	Monitor    *healthuc.Monitor
	Dispatcher *dispatch.Dispatcher
	Chain      *chain.Chain
	Health     *healthuc.Service

	pool   *backend.Pool
	store  *dbRedis.Store
	logger *zap.Logger
}

// backendPool hands out node backends for direct dispatch.
type backendPool interface {
	Backend(host string, port int) backend.Backend
}

// New connects the topology store (if any), loads the first topology
// snapshot and builds the search chain. Dispatch metrics must already be
// registered.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	pool := backend.NewPool(backend.Config{
		DialTimeout: cfg.DialTimeout(),
		MaxIdle:     cfg.Dispatch.MaxIdleConns,
	}, logger)
	dispatchBackend := pool.Backend(cfg.Dispatch.Backend.Host, cfg.Dispatch.Backend.Port)

	var (
		loader topologyrepo.Loader = topologyrepo.Static(cfg.StaticNodes())
		store  *dbRedis.Store
		repo   *topologyrepo.Repo
	)
	if cfg.Topology.Source == config.TopologyRedis {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Topology.Redis.Addrs,
			Password: cfg.Topology.Redis.Password,
		})
		if err != nil {
			_ = pool.Close()
			return nil, fmt.Errorf("topology store: %w", err)
		}
		timeout := time.Duration(cfg.Topology.Redis.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, timeout); err != nil {
			s.Close()
			_ = pool.Close()
			return nil, fmt.Errorf("topology store not ready: %w", err)
		}
		store = s
		repo = topologyrepo.New(s, cfg.Topology.KeyPrefix)
		loader = repo
	}

	a, err := build(cfg, dispatchBackend, pool, loader, logger)
	if err != nil {
		if store != nil {
			store.Close()
		}
		_ = pool.Close()
		return nil, err
	}
	a.pool = pool
	a.store = store
	a.Nodes = repo
	if store != nil {
		a.Health = healthuc.New(a.Monitor, a.healthTargets(), store, cfg.PingTimeout())
	}

	if err := a.Topology.Refresh(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("initial topology load: %w", err)
	}
	return a, nil
}

// build wires the components around an already chosen dispatch backend.
func build(
	cfg config.Config,
	dispatchBackend backend.Backend,
	nodes backendPool,
	loader topologyrepo.Loader,
	logger *zap.Logger,
) (*App, error) {
	dbs, err := cfg.Databases()
	if err != nil {
		return nil, err
	}

	respCache := cache.New(cache.Config{
		CapacityMB: cfg.Cache.CapacityMB,
		TTL:        cfg.CacheTTL(),
	}, metrics.CacheEntries, metrics.CacheBytes, logger)

	policy := selection.New(dispatchBackend, nodes, selection.Config{
		SelfHostname:         cfg.Dispatch.SelfHostname,
		ContainerClusterSize: cfg.Dispatch.ContainerClusterSize,
	}, metrics.BackendSelectionTotal)

	provider := topologyrepo.NewProvider(loader, logger)
	monitor := healthuc.NewMonitor(respCache, metrics.PingTotal, logger)

	dispatcher := dispatch.New(dispatch.Config{
		Name:           cfg.Dispatch.Name,
		DefaultSummary: cfg.Dispatch.DefaultSummary,
		PingTimeout:    cfg.PingTimeout(),
	}, dispatch.Deps{
		Dispatch: dispatchBackend,
		Chooser:  policy,
		Topology: provider,
		Cache:    respCache,
		Docsums:  docsum.NewSet(dbs...),
		Monitor:  monitor,
		Metrics:  metrics.Dispatcher(),
	}, logger)

	a := &App{
		Config:     cfg,
		Backend:    dispatchBackend,
		Cache:      respCache,
		Topology:   provider,
		Monitor:    monitor,
		Dispatcher: dispatcher,
		Chain:      chain.New(chain.Validator{}, dispatcher),
		logger:     logger,
	}
	a.Health = healthuc.New(monitor, a.healthTargets(), nil, cfg.PingTimeout())
	return a, nil
}

func (a *App) healthTargets() []healthuc.Target {
	return []healthuc.Target{{Name: a.Config.Dispatch.Name, Backend: a.Backend}}
}

// WatchGeneration pings the dispatch backend every interval until ctx is
// done, so the response cache learns about new index generations.
func (a *App) WatchGeneration(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if pong := a.Dispatcher.Ping(ctx); !pong.OK() {
				a.logger.Debug("generation watch ping failed", zap.Stringer("pong", pong))
			}
		}
	}
}

// Close releases backend connections and the topology store.
func (a *App) Close() {
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("closing backends", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/fastdispatch/internal/app"
	"github.com/kailas-cloud/fastdispatch/internal/config"
	logpkg "github.com/kailas-cloud/fastdispatch/internal/logger"
	"github.com/kailas-cloud/fastdispatch/internal/metrics"
	chiTransport "github.com/kailas-cloud/fastdispatch/internal/transport/chi"
	"github.com/kailas-cloud/fastdispatch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fastdispatch",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("dispatch_backend", fmt.Sprintf("%s:%d", cfg.Dispatch.Backend.Host, cfg.Dispatch.Backend.Port)),
		zap.String("topology_source", cfg.Topology.Source),
		zap.Int("cache_capacity_mb", cfg.Cache.CapacityMB),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("fastdispatch stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterDispatchMetrics()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Dispatch chain ready",
		zap.Strings("searchers", a.Chain.Names()),
		zap.Int("topology_nodes", a.Topology.Cluster().Size()),
	)

	server := chiTransport.NewServer(a.Health, a.Cache, a.Topology, logger).WithSearcher(a.Chain)
	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(chiTransport.Options{APIKeys: cfg.HTTP.APIKeys}),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Topology.Run(gctx, cfg.TopologyRefresh())
	})
	g.Go(func() error {
		return a.WatchGeneration(gctx, cfg.PingInterval())
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

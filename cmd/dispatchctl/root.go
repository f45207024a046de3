package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fastdispatch/internal/app"
	"github.com/kailas-cloud/fastdispatch/internal/config"
	logpkg "github.com/kailas-cloud/fastdispatch/internal/logger"
)

type globalOptions struct {
	configFile string
	env        string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Query and inspect fastdispatch backends",
		Long: `dispatchctl runs queries, fills and pings through the same dispatch
chain the fastdispatch service uses, and manages the node registry.

Example usage:
  dispatchctl ping                       # Ping the dispatch backend
  dispatchctl search miles davis         # Search and fill the default summary
  dispatchctl node add search3 19110     # Register a node (redis topology)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: config/<env>.yaml)")
	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "environment: local, dev, prod")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newPingCmd(opts),
		newSearchCmd(opts),
		newNodeCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *globalOptions) loadConfig() (config.Config, error) {
	if o.configFile != "" {
		return config.LoadFile(o.configFile)
	}
	return config.Load(o.env)
}

// open loads configuration and assembles the dispatch components. The caller
// must Close the returned App.
func (o *globalOptions) open(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger, err := logpkg.NewLogger(o.env, o.logLevel)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logger)
}

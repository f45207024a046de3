package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fastdispatch/internal/app"
	"github.com/kailas-cloud/fastdispatch/internal/domain/topology"
)

var errStaticTopology = errors.New("node registry needs topology.source: redis")

func newNodeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage the search node registry",
	}
	cmd.AddCommand(newNodeListCmd(opts), newNodeAddCmd(opts), newNodeRemoveCmd(opts))
	return cmd
}

func newNodeListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List nodes of the current topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return printNodes(cmd, a.Topology.Cluster().Nodes())
		},
	}
}

func newNodeAddCmd(opts *globalOptions) *cobra.Command {
	var (
		group int
		down  bool
	)
	cmd := &cobra.Command{
		Use:   "add <host> <port>",
		Short: "Register a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			return withRegistry(cmd, opts, func(a *app.App) error {
				n := topology.Node{Hostname: args[0], Port: port, Group: group, Working: !down}
				if err := a.Nodes.Register(cmd.Context(), n); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&group, "group", 0, "data-partition group")
	cmd.Flags().BoolVar(&down, "down", false, "register the node as not working")
	return cmd
}

func newNodeRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <host> <port>",
		Aliases: []string{"rm"},
		Short:   "Deregister a node",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[1])
			if err != nil {
				return err
			}
			return withRegistry(cmd, opts, func(a *app.App) error {
				if err := a.Nodes.Deregister(cmd.Context(), args[0], port); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s:%d\n", args[0], port)
				return nil
			})
		},
	}
}

func withRegistry(cmd *cobra.Command, opts *globalOptions, fn func(a *app.App) error) error {
	a, err := opts.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Nodes == nil {
		return errStaticTopology
	}
	return fn(a)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func printNodes(cmd *cobra.Command, nodes []topology.Node) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tPORT\tGROUP\tWORKING")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\n", n.Hostname, n.Port, n.Group, n.Working)
	}
	return tw.Flush()
}

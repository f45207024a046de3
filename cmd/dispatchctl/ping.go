package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Ping the dispatch backend and print its index generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			pong := a.Dispatcher.Ping(cmd.Context())
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, pong)
			if d, ok := pong.Docstamp(); ok {
				fmt.Fprintf(w, "docstamp: %d\n", d)
			}
			if !pong.OK() {
				return fmt.Errorf("%s did not answer ping", a.Backend.Name())
			}
			return nil
		},
	}
}

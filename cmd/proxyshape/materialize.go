package main

import (
	"fmt"

	"github.com/aretw0/proxyshape/internal/cli"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/spf13/cobra"
)

var materializeCmd = &cobra.Command{
	Use:   "materialize <path>",
	Short: "Create the shadow transform chain for a prim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subtree, _ := cmd.Flags().GetBool("subtree")
		return mutate(cmd, func(w *cli.Workspace) error {
			materialize := w.Proxy.Materialize
			if subtree {
				materialize = w.Proxy.MaterializeSubtree
			}
			h, err := materialize(domain.Path(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", args[0], h)
			return nil
		})
	},
}

var dematerializeCmd = &cobra.Command{
	Use:   "dematerialize <path>",
	Short: "Release a prim materialized with the materialize command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subtree, _ := cmd.Flags().GetBool("subtree")
		return mutate(cmd, func(w *cli.Workspace) error {
			if subtree {
				return w.Proxy.DematerializeSubtree(domain.Path(args[0]))
			}
			return w.Proxy.Dematerialize(domain.Path(args[0]))
		})
	},
}

func init() {
	rootCmd.AddCommand(materializeCmd)
	rootCmd.AddCommand(dematerializeCmd)
	materializeCmd.Flags().Bool("subtree", false, "Also materialize every descendant")
	dematerializeCmd.Flags().Bool("subtree", false, "Release a subtree materialization")
}

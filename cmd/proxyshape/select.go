package main

import (
	"fmt"

	"github.com/aretw0/proxyshape/internal/cli"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:   "select <path>...",
	Short: "Change the prim selection",
	Long: `Changes the selection of the proxy. --mode decides how the given paths
combine with the current selection: replace (default), add, remove or toggle.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawMode, _ := cmd.Flags().GetString("mode")
		mode, err := domain.ParseSelectMode(rawMode)
		if err != nil {
			return err
		}
		paths, err := parsePaths(args)
		if err != nil {
			return err
		}
		return mutate(cmd, func(w *cli.Workspace) error {
			op, err := w.Proxy.Select(paths, mode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cli.PrintSystemMessage(out, "%d node(s) created, %d destroyed", len(op.Inserted), len(op.Removed))
			for _, p := range w.Proxy.Selected() {
				fmt.Fprintln(out, p)
			}
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the prim selection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutate(cmd, func(w *cli.Workspace) error {
			op, err := w.Proxy.ClearSelection()
			if err != nil {
				return err
			}
			cli.PrintSystemMessage(cmd.OutOrStdout(), "%d node(s) destroyed", len(op.Removed))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(clearCmd)
	selectCmd.Flags().StringP("mode", "m", "replace", "Selection mode: replace, add, remove or toggle")
}

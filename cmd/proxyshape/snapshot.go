package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/proxyshape/internal/cli"
	"github.com/aretw0/proxyshape/pkg/ports"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage saved proxy snapshots",
	Long:  `List, inspect and remove the snapshots kept in the configured store.`,
}

func withStore(cmd *cobra.Command, fn func(store ports.SnapshotStore) error) error {
	opts := options(cmd)
	if err := opts.Validate(); err != nil {
		return err
	}
	store, _, closeStore, err := cli.OpenStore(opts)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

var snapshotLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List saved snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.SnapshotStore) error {
			ids, err := store.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("error listing snapshots: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No snapshots found.")
				return nil
			}
			fmt.Fprintln(out, "Snapshots:")
			for _, id := range ids {
				fmt.Fprintln(out, "- "+id)
			}
			return nil
		})
	},
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect <proxy-id>",
	Short: "Print a snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.SnapshotStore) error {
			snap, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("error loading snapshot '%s': %w", args[0], err)
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		})
	},
}

var snapshotRmCmd = &cobra.Command{
	Use:   "rm <proxy-id>...",
	Short: "Remove one or more snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(store ports.SnapshotStore) error {
			var failed int
			for _, id := range args {
				if err := store.Delete(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed snapshot '%s'\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d snapshot(s) could not be removed", failed)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotLsCmd)
	snapshotCmd.AddCommand(snapshotInspectCmd)
	snapshotCmd.AddCommand(snapshotRmCmd)
}

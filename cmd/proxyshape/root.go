package main

import (
	"fmt"
	"os"

	"github.com/aretw0/proxyshape/internal/cli"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "proxyshape",
	Short: "proxyshape mirrors USD prims as shadow transform nodes",
	Long: `proxyshape keeps a host scene graph of shadow transform nodes in sync with
the prims a user selects or materializes on a USD stage.

Every command rebuilds the proxy from --stage, restores its last snapshot
from --store, applies the change and saves the snapshot back.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("stage", "stage.yaml", "YAML stage description")
	f.String("proxy", "default", "ID of the proxy shape")
	f.String("dir", ".", "Project directory holding .proxyshape/snapshots")
	f.String("store", cli.StoreFile, "Snapshot store: file, memory or redis")
	f.String("redis", "", "Redis URL for --store=redis (e.g. redis://localhost:6379/0)")
	f.String("log-level", "warn", "Log level: debug, info, warn or error")
	f.Bool("log-json", false, "Write logs as JSON")
	f.String("encryption-key", os.Getenv("PROXYSHAPE_ENCRYPTION_KEY"), "Base64 AES-256 key sealing saved snapshots")
	f.StringSlice("fallback-key", nil, "Older base64 keys accepted when loading snapshots")
}

func options(cmd *cobra.Command) cli.Options {
	f := cmd.Flags()
	var o cli.Options
	o.StagePath, _ = f.GetString("stage")
	o.ProxyID, _ = f.GetString("proxy")
	o.Dir, _ = f.GetString("dir")
	o.Store, _ = f.GetString("store")
	o.RedisURL, _ = f.GetString("redis")
	o.LogLevel, _ = f.GetString("log-level")
	o.LogJSON, _ = f.GetBool("log-json")
	o.EncryptionKey, _ = f.GetString("encryption-key")
	o.FallbackKeys, _ = f.GetStringSlice("fallback-key")
	return o
}

// openWorkspace loads the proxy the command operates on.
func openWorkspace(cmd *cobra.Command, hooks ...domain.LifecycleHooks) (*cli.Workspace, error) {
	opts := options(cmd)
	logger, err := cli.NewLogger(cmd.ErrOrStderr(), opts)
	if err != nil {
		return nil, err
	}
	hooks = append(hooks, cli.DebugHooks(logger))
	return cli.Open(cmd.Context(), opts, logger, hooks...)
}

// mutate opens the workspace, runs fn and saves the snapshot.
func mutate(cmd *cobra.Command, fn func(w *cli.Workspace) error) error {
	w, err := openWorkspace(cmd)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := fn(w); err != nil {
		return err
	}
	return w.Commit(cmd.Context())
}

func parsePaths(args []string) ([]domain.Path, error) {
	paths := make([]domain.Path, 0, len(args))
	for _, a := range args {
		p, err := domain.ParsePath(a)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/proxyshape/internal/cli"
	"github.com/aretw0/proxyshape/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the proxy as MCP tools so agents can select and materialize prims.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		// Logs go to Stderr so they never corrupt JSON-RPC on Stdout.
		w, err := openWorkspace(cmd)
		if err != nil {
			return err
		}
		defer w.Close()

		srv := mcp.NewServer(w.Manager, mcp.WithLogger(w.Logger))

		switch transport {
		case "stdio":
			w.Logger.Info("starting mcp server (stdio)", "proxy_id", w.Proxy.ID())
			err = srv.ServeStdio()
		case "sse":
			w.Logger.Info("starting mcp server (sse)", "port", port, "proxy_id", w.Proxy.ID())
			err = srv.ServeSSE(sigCtx, port)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
		default:
			return fmt.Errorf("unknown transport %q: supported are stdio and sse", transport)
		}
		if err != nil {
			return fmt.Errorf("mcp server failed: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.Manager.SaveAll(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/proxyshape/internal/cli"
	httpadapter "github.com/aretw0/proxyshape/pkg/adapters/http"
	"github.com/aretw0/proxyshape/pkg/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the proxy over HTTP",
	Long: `Starts an HTTP server exposing the proxy as a JSON API, a server-sent event
stream of lifecycle events on /events and Prometheus metrics on /metrics.
The snapshot is saved on shutdown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := observability.NewMetrics(observability.WithRegisterer(reg))
		if err != nil {
			return err
		}

		opts := options(cmd)
		logger, err := cli.NewLogger(cmd.ErrOrStderr(), opts)
		if err != nil {
			return err
		}
		streams := httpadapter.NewStreamManager(logger)

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		w, err := cli.Open(sigCtx, opts, logger, metrics.Hooks(), streams.Hooks(), cli.DebugHooks(logger))
		if err != nil {
			return err
		}
		defer w.Close()

		router := chi.NewRouter()
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		router.Mount("/", httpadapter.NewHandler(w.Manager,
			httpadapter.WithStreams(streams),
			httpadapter.WithLogger(logger),
		))

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: router,
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("http server listening", "address", srv.Addr, "proxy_id", w.Proxy.ID())
			fmt.Fprintf(cmd.OutOrStdout(), "Serving proxy %q on %s\n", w.Proxy.ID(), srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case <-sigCtx.Done():
			logger.Info("shutting down", "signal", sigCtx.Signal())
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "err", err)
				_ = srv.Close()
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.Manager.SaveAll(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}

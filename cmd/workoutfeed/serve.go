// ABOUTME: CLI command for the HTTP JSON API.
// ABOUTME: Serves the merged feed and Prometheus metrics until interrupted, then shuts down gracefully.
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

	"github.com/harperreed/workoutfeed/internal/httpapi"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feed over HTTP",
	Long: `Serve the merged feed as JSON.

ROUTES:

  GET    /v1/workouts                       Configured identity
  GET    /v1/workouts/{identity}            ?refresh=1 bypasses the cache, ?limit=N
  GET    /v1/workouts/{identity}/older      ?until=<unix seconds>
  DELETE /v1/workouts/{identity}/cache      Drop the cached feed
  GET    /metrics                           Prometheus metrics
  GET    /health                            Liveness`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		feed, err := openFeed(nil)
		if err != nil {
			return err
		}

		addr := serveAddr
		if addr == "" {
			addr = cfg.GetHTTPAddr()
		}

		srv := &http.Server{
			Addr: addr,
			Handler: httpapi.NewServer(feed, httpapi.ServerConfig{
				DefaultIdentity: resolveIdentity(nil),
				Logger:          logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", "addr", addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8089)")
	rootCmd.AddCommand(serveCmd)
}

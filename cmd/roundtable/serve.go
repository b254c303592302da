package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/roundtable/gateway"
	"github.com/bazelment/yoloswe/roundtable/stream"
)

var (
	serveUpstream string
	serveListen   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Aggregate upstream tokens and serve state over websocket",
	Long: `Connect to the upstream token gateway, aggregate fragments into
per-agent state, and serve state snapshots to websocket clients.

Example:
  roundtable serve
  roundtable serve --upstream ws://localhost:8700/stream --listen :8701`,
	Args: cobra.NoArgs,
	RunE: runServeCmd,
}

func init() {
	serveCmd.Flags().StringVar(&serveUpstream, "upstream", "", "Upstream websocket URL (overrides config)")
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address for the state hub (overrides config)")

	rootCmd.AddCommand(serveCmd)
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveUpstream != "" {
		cfg.UpstreamURL = serveUpstream
	}
	if serveListen != "" {
		cfg.ListenAddr = serveListen
	}

	logger := newLogger()

	ctx, cancel := setupContext()
	defer cancel()

	opts := cfg.StreamOptions()
	opts.Logger = logger.With("component", "stream")
	agg := stream.New(opts)
	defer agg.Close()

	feed, err := gateway.NewFeed(gateway.FeedConfig{
		URL:    cfg.UpstreamURL,
		Sink:   agg,
		Logger: logger.With("component", "feed"),
	})
	if err != nil {
		return err
	}

	feedDone := make(chan error, 1)
	go func() {
		feedDone <- feed.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/state", gateway.NewHub(agg, logger.With("component", "hub")))

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	serveDone := make(chan error, 1)
	go func() {
		logger.Info("state hub listening", "addr", cfg.ListenAddr)
		serveDone <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveDone:
		cancel()
		<-feedDone
		return fmt.Errorf("state hub: %w", err)
	case err := <-feedDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("upstream feed stopped", "error", err)
		}
	case <-ctx.Done():
		<-feedDone
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown state hub: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/roundtable/simulate"
)

var (
	simulateAddr string
	simulateLoop bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a fake token gateway for local development",
	Long: `Serve a websocket endpoint that streams a scripted multi-agent
conversation, including end-of-stream markers and a timeout notice, so
the aggregator can be exercised without a real gateway.

Example:
  roundtable simulate
  roundtable simulate --addr :8700 --loop`,
	Args: cobra.NoArgs,
	RunE: runSimulateCmd,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAddr, "addr", "127.0.0.1:8700", "Listen address for the simulated gateway")
	simulateCmd.Flags().BoolVar(&simulateLoop, "loop", false, "Replay the script forever instead of once per connection")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulateCmd(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	ctx, cancel := setupContext()
	defer cancel()

	sim := simulate.NewServer(nil, logger.With("component", "simulate"))
	sim.Loop = simulateLoop

	mux := http.NewServeMux()
	mux.Handle("/stream", sim)

	srv := &http.Server{
		Addr:    simulateAddr,
		Handler: mux,
	}

	done := make(chan error, 1)
	go func() {
		logger.Info("simulated gateway listening", "addr", simulateAddr, "loop", simulateLoop)
		done <- srv.ListenAndServe()
	}()

	select {
	case err := <-done:
		return fmt.Errorf("simulated gateway: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown simulated gateway: %w", err)
	}
	return nil
}

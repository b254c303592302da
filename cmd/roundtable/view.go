package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/roundtable/gateway"
	"github.com/bazelment/yoloswe/roundtable/stream"
	"github.com/bazelment/yoloswe/roundtable/tui"
)

var viewUpstream string

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Render aggregated agent streams in the terminal",
	Long: `Connect to the upstream token gateway and render per-agent message
state as live terminal panes. Press q to quit.

Example:
  roundtable view
  roundtable view --upstream ws://localhost:8700/stream`,
	Args: cobra.NoArgs,
	RunE: runViewCmd,
}

func init() {
	viewCmd.Flags().StringVar(&viewUpstream, "upstream", "", "Upstream websocket URL (overrides config)")

	rootCmd.AddCommand(viewCmd)
}

func runViewCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if viewUpstream != "" {
		cfg.UpstreamURL = viewUpstream
	}

	// The viewer owns the terminal, so diagnostics go to a file when
	// requested instead of stderr.
	logger, closeLog, err := viewLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := setupContext()
	defer cancel()

	agg := stream.New(cfg.StreamOptions())
	defer agg.Close()

	feed, err := gateway.NewFeed(gateway.FeedConfig{
		URL:    cfg.UpstreamURL,
		Sink:   agg,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	go feed.Run(ctx)

	id, snapshots := agg.Subscribe(16)
	defer agg.Unsubscribe(id)

	return tui.Run(snapshots, feed.State())
}

// viewLogger returns a file-backed logger when -v is set. Without it
// logging is disabled entirely so nothing fights the viewer for the
// terminal.
func viewLogger() (*slog.Logger, func(), error) {
	if !verbose {
		return nil, func() {}, nil
	}
	f, err := os.OpenFile("roundtable.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() { f.Close() }, nil
}

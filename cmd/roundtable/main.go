// Command roundtable aggregates interleaved agent token streams into a
// per-agent view. It can serve aggregated state over a websocket hub,
// render it in a terminal viewer, or simulate an upstream gateway.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bazelment/yoloswe/roundtable/config"
)

// Global flags (persistent across all commands)
var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Multi-agent token stream aggregator",
	Long: `Roundtable consumes interleaved token fragments from a multi-agent
gateway, coalesces them into per-agent message state, and publishes the
result to websocket clients or a terminal viewer.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger based on verbosity flags.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file, falling back to defaults when the
// flag still points at the default path and no file exists.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// setupContext creates a context cancelled on SIGINT/SIGTERM. A second
// signal forces exit.
func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		<-sigCh
		os.Exit(1)
	}()

	return ctx, cancel
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/plugd/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugd",
		Short: "Plugin package resolution and installation engine",
		Long: `plugd aggregates plugin packages published by repository manifests,
selects the newest compatible version and installs it with progress tracking,
retries and cancellation.
- CLI: search, info, install, installed
- Server: HTTP API with Prometheus metrics
- Configuration: repositories and engine settings in one YAML file`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	// Set up CLI package variables
	cli.ConfigPath = &configPath
	cli.LogLevel = &logLevel
	cli.LogFormat = &logFormat

	// Add subcommands
	cmd.AddCommand(
		cli.NewServeCmd(),
		cli.NewRepoCmd(),
		cli.NewSearchCmd(),
		cli.NewInfoCmd(),
		cli.NewInstallCmd(),
		cli.NewInstalledCmd(),
		cli.NewConfigCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}

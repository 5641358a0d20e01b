// deebotd runs the Deebot vacuum integration.
//
// It supervises the configured Deebot accounts (config entries), bridges
// their robots over MQTT into sensor, binary_sensor, vacuum and camera
// entities, and serves them over a REST API and a WebSocket event stream.
//
// Commands:
//
//	deebotd serve              run the integration until interrupted
//	deebotd migrate            upgrade stored entries to the current schema
//	deebotd entries list       show stored entries
//	deebotd entries add        store a new account entry
//	deebotd version            print build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-deebot/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "DEEBOT_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deebotd",
		Short:         "Deebot vacuum integration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", getConfigPath(), "path to config file (env "+configEnvVar+")")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newEntriesCmd(),
		newVersionCmd(),
	)
	return root
}

// getConfigPath returns the config file path from environment or default.
func getConfigPath() string {
	if path := os.Getenv(configEnvVar); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the file named by --config. When lenient is set and the
// file does not exist at the default location, the built-in defaults are
// used instead, so maintenance commands work without a config file.
func loadConfig(cmd *cobra.Command, lenient bool) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !lenient || !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "deebotd %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

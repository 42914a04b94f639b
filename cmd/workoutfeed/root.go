// ABOUTME: Root Cobra command for the workoutfeed CLI.
// ABOUTME: Loads config and the logger in PersistentPreRunE and closes opened resources afterwards.
package main

import (
	"fmt"
	"os"

	"github.com/harperreed/workoutfeed/internal/config"
	"github.com/harperreed/workoutfeed/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	identityFlag string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "workoutfeed",
	Short: "Merged workout feed from this device and Nostr relays",
	Long: `Workoutfeed shows one deduplicated list of your workouts: the ones recorded
on this device plus the ones published to Nostr relays as kind 1301 events.

QUICK START:

  $ workoutfeed config set-identity npub1...   # Who to look up
  $ workoutfeed feed                           # Merged feed (cached for 5 minutes)
  $ workoutfeed feed --refresh                 # Skip the cache
  $ workoutfeed older 1717000000               # Page older than a cursor

LOCAL WORKOUTS:

  $ workoutfeed local add run --duration 45m --distance 8km
  $ workoutfeed local list
  $ workoutfeed local export json -o backup.json

CACHE:

  $ workoutfeed cache status
  $ workoutfeed cache invalidate

SERVERS:

  $ workoutfeed mcp      # MCP server over stdio
  $ workoutfeed serve    # HTTP JSON API with /metrics

DATA STORAGE:

  Local workouts live in ~/.local/share/workoutfeed/workouts.db.
  The feed cache lives next to it (badger by default).
  Configuration is read from ~/.config/workoutfeed/config.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFrom(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.GetLogLevel()
		switch {
		case logLevelFlag != "":
			level = logLevelFlag
		case cfg.LogLevel == "" && cmd.Name() == "serve":
			level = "info"
		}
		logger, err = logging.New(os.Stderr, level)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/workoutfeed/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&identityFlag, "identity", "", "identity to query (hex or npub), overrides config")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error")
}

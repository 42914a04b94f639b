// ABOUTME: CLI command for starting the MCP server.
// ABOUTME: Runs a stdio MCP server over the merged feed and the local store.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/workoutfeed/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server communicates via stdin/stdout.

CLAUDE DESKTOP CONFIGURATION:

  {
    "mcpServers": {
      "workoutfeed": {
        "command": "workoutfeed",
        "args": ["mcp"]
      }
    }
  }

AVAILABLE TOOLS:

  get_workouts          Merged feed for an identity (cached)
  refresh_workouts      Merged feed, bypassing the cache
  get_older_workouts    Page older than a cursor
  invalidate_cache      Drop a cached feed
  add_local_workout     Record a workout on this device
  list_local_workouts   List local workouts
  get_local_workout     Show one local workout
  delete_local_workout  Delete a local workout

AVAILABLE RESOURCES:

  workouts://feed       Merged feed for the configured identity
  workouts://local      Last 10 local workouts
  workouts://summary    Per-activity totals`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		feed, err := openFeed(nil)
		if err != nil {
			return err
		}
		r, err := openRepo()
		if err != nil {
			return err
		}

		server, err := mcp.NewServer(feed, r, resolveIdentity(nil), version)
		if err != nil {
			return err
		}
		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// ABOUTME: CLI commands for reading the merged workout feed.
// ABOUTME: feed serves from cache or relays; older pages past a cursor.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/spf13/cobra"
)

var (
	feedRefresh bool
	feedLimit   int
	feedJSON    bool
)

var feedCmd = &cobra.Command{
	Use:     "feed [identity]",
	Aliases: []string{"f"},
	Short:   "Show the merged workout feed",
	Long: `Show workouts recorded on this device merged with the ones published to relays.

A fresh cached feed is returned immediately. A stale one is returned too, and a
background refresh repairs the cache before the command exits. Without a cache
entry the relays are queried (a few seconds up to ~40s for sparse histories).

Press Ctrl-C during discovery to stop escalating and show what was found so far.

OUTPUT FORMAT:

  ID  DATE  ORIGIN  ACTIVITY  DURATION  DISTANCE  (TITLE)

EXAMPLES:

  workoutfeed feed                 # Configured identity
  workoutfeed feed npub1...        # Someone else
  workoutfeed feed --refresh       # Ignore the cache
  workoutfeed feed --json          # Full result envelope`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		identity := resolveIdentity(args)
		if identity == "" {
			return fmt.Errorf("no identity: pass one, use --identity, or run 'workoutfeed config set-identity'")
		}

		feed, err := openFeed(func() bool { return ctx.Err() != nil })
		if err != nil {
			return err
		}

		var res models.MergeResult
		if feedRefresh {
			res = feed.ForceRefresh(ctx, identity)
		} else {
			res = feed.Get(ctx, identity)
		}
		return renderResult(cmd.OutOrStdout(), res, feedLimit, feedJSON)
	},
}

var olderCmd = &cobra.Command{
	Use:   "older <cursor> [identity]",
	Short: "Show workouts older than a cursor",
	Long: `Show the page of workouts that started before a cursor.

The cursor is the next_cursor value printed by 'feed' (unix seconds), or a date.
Older pages are not cached.

EXAMPLES:

  workoutfeed older 1717000000
  workoutfeed older 2024-01-01`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		until, err := parseCursor(args[0])
		if err != nil {
			return err
		}

		identity := resolveIdentity(args[1:])
		if identity == "" {
			return fmt.Errorf("no identity: pass one, use --identity, or run 'workoutfeed config set-identity'")
		}

		feed, err := openFeed(func() bool { return ctx.Err() != nil })
		if err != nil {
			return err
		}

		res := feed.OlderPage(ctx, identity, until)
		return renderResult(cmd.OutOrStdout(), res, feedLimit, feedJSON)
	},
}

func parseCursor(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs <= 0 {
			return time.Time{}, fmt.Errorf("cursor must be positive")
		}
		return time.Unix(secs, 0), nil
	}
	t, err := parseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cursor: %s", s)
	}
	return t, nil
}

func renderResult(out io.Writer, res models.MergeResult, limit int, asJSON bool) error {
	page := res.Limit(limit)
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}

	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	for _, e := range res.Errors {
		yellow.Fprintf(out, "⚠ %s\n", e)
	}

	if len(res.Records) == 0 {
		fmt.Fprintln(out, "No workouts found.")
		return nil
	}

	for _, r := range page.Records {
		printRecord(out, r)
	}

	source := "relays"
	switch {
	case res.FromCache && res.Stale:
		source = fmt.Sprintf("stale cache, %ds old, refreshing", res.CacheAgeSeconds)
	case res.FromCache:
		source = fmt.Sprintf("cache, %ds old", res.CacheAgeSeconds)
	}
	fmt.Fprintln(out)
	faint.Fprintf(out, "%d workouts (%d network, %d local, %d duplicates) from %s in %dms\n",
		len(res.Records), res.NetworkCount, res.LocalCount, res.DuplicateCount, source, res.FetchDurationMs)
	if res.Partial {
		yellow.Fprintln(out, "⚠ partial result: some sources failed")
	}
	if page.NextCursor > 0 {
		faint.Fprintf(out, "older: workoutfeed older %d\n", page.NextCursor)
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{feedCmd, olderCmd} {
		c.Flags().IntVarP(&feedLimit, "limit", "n", 20, "max number of workouts to print")
		c.Flags().BoolVar(&feedJSON, "json", false, "print the full result as JSON")
	}
	feedCmd.Flags().BoolVar(&feedRefresh, "refresh", false, "bypass the cache")

	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(olderCmd)
}

// ABOUTME: CLI commands for inspecting and clearing the feed cache.
// ABOUTME: status shows age, freshness and size per identity; invalidate drops an entry.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/workoutfeed/internal/relay"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the feed cache",
	Long: `Inspect or clear the cached merged feeds.

A cached feed is fresh for the configured TTL (5 minutes by default). After that
it is still served, marked stale, while a background refresh replaces it.

COMMANDS:

  status       Show cached identities with age and record count
  invalidate   Drop the cached feed for an identity`,
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status [identity]",
	Short: "Show cache status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		var identities []string
		if id := resolveIdentity(args); id != "" && len(args) > 0 {
			hex, err := relay.NormalizeIdentity(id)
			if err != nil {
				return err
			}
			identities = []string{hex}
		} else {
			identities, err = store.Identities()
			if err != nil {
				return fmt.Errorf("failed to list cache: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		if len(identities) == 0 {
			fmt.Fprintln(out, "Cache is empty.")
			return nil
		}

		faint := color.New(color.Faint)
		now := store.Now()
		for _, id := range identities {
			entry, fresh, ok := store.Get(id)
			if !ok {
				fmt.Fprintf(out, "%s %s\n", faint.Sprint(shortID(id)), "not cached")
				continue
			}
			state := color.New(color.FgGreen).Sprint("fresh")
			if !fresh {
				state = color.New(color.FgYellow).Sprint("stale")
			}
			fmt.Fprintf(out, "%s %s %s %d workouts, %d duplicates, fetched %s ago\n",
				faint.Sprint(shortID(id)),
				faint.Sprint(displayIdentity(id)),
				state,
				len(entry.Records),
				entry.DuplicateCount,
				entry.Age(now).Truncate(time.Second))
		}
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:     "invalidate [identity]",
	Aliases: []string{"clear"},
	Short:   "Drop the cached feed for an identity",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := resolveIdentity(args)
		if identity == "" {
			return fmt.Errorf("no identity: pass one, use --identity, or run 'workoutfeed config set-identity'")
		}
		hex, err := relay.NormalizeIdentity(identity)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		if err := store.Invalidate(hex); err != nil {
			return fmt.Errorf("failed to invalidate cache: %w", err)
		}

		color.New(color.FgYellow).Fprintf(cmd.OutOrStdout(), "✗ Invalidated %s\n", shortID(hex))
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
	rootCmd.AddCommand(cacheCmd)
}

func displayIdentity(hex string) string {
	npub, err := relay.EncodeNpub(hex)
	if err != nil {
		return hex
	}
	return truncate(npub, 20)
}

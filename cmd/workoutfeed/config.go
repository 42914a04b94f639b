// ABOUTME: CLI commands for viewing and editing configuration.
// ABOUTME: show prints effective settings, path prints the file, set-identity validates and saves.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/workoutfeed/internal/relay"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or edit configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with defaults applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		effective := map[string]any{
			"identity":  cfg.Identity,
			"relays":    cfg.GetRelays(),
			"data_dir":  cfg.GetDataDir(),
			"log_level": cfg.GetLogLevel(),
			"cache": map[string]any{
				"backend": cfg.GetCacheBackend(),
				"ttl":     cfg.GetTTL().String(),
			},
			"discovery": map[string]any{
				"sufficient":     cfg.GetSufficient(),
				"window_timeout": cfg.GetWindowTimeout().String(),
				"broad_timeouts": durationStrings(cfg.GetBroadTimeouts()),
				"dial_timeout":   cfg.GetDialTimeout().String(),
			},
			"http": map[string]any{
				"addr": cfg.GetHTTPAddr(),
			},
		}

		data, err := yaml.Marshal(effective)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Path())
		return nil
	},
}

var configSetIdentityCmd = &cobra.Command{
	Use:   "set-identity <hex|npub>",
	Short: "Set the default identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hex, err := relay.NormalizeIdentity(args[0])
		if err != nil {
			return err
		}
		cfg.Identity = args[0]
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintln(out, "✓ Identity saved")
		fmt.Fprintf(out, "  %s\n", color.New(color.Faint).Sprint(hex))
		return nil
	},
}

func durationStrings(ds []time.Duration) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.String())
	}
	return out
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetIdentityCmd)
	rootCmd.AddCommand(configCmd)
}

package cli

import (
	"fmt"

	"github.com/ppiankov/stimalign/internal/cache"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the corpus index cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached corpus indices",
	Long: `Remove every cached corpus index from the configured cache directory.

Run this after editing the corpus format parser or when the cache directory
has grown stale; the next run rebuilds the indices it needs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return WrapExitError(ExitCommandError, "load configuration", err)
		}

		c := cache.New(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
		if err := c.Clear(); err != nil {
			return WrapExitError(ExitCommandError, "clear cache", err)
		}

		if cfg.Cache.Dir == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "✓ No cache directory configured; nothing on disk to clear")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared cache: %s\n", cfg.Cache.Dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

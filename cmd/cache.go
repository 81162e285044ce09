package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"hostclass/cache"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the hostclass cache",
	Long:  `Manage the cache of downloaded suffix lists, IP lists and IP databases.`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached files",
	Long:  `Clear all cached files from the cache directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}

		c, err := newCache(cfg)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}

		if err := handleCacheClear(os.Stdout, c); err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func handleCacheClear(w io.Writer, c *cache.Cache) error {
	fmt.Fprintf(w, "Clearing cache directory: %s\n", c.Dir())

	removed, err := c.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	fmt.Fprintf(w, "Removed %d cached file(s)\n", removed)
	return nil
}

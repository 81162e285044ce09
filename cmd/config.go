package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"hostclass/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the hostclass configuration",
	Long:  `Commands for checking the configuration file used by hostclass.`,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and summarize it",
	Long: `Parses and validates the configuration file, then prints the sources
and settings hostclass would use. Exits 1 when the file is invalid.`,
	Run: func(cmd *cobra.Command, args []string) {
		configMgr, err := config.NewManager(configFile)
		if err != nil {
			log.Printf("[ERROR] Invalid configuration %s: %v", configFile, err)
			os.Exit(1)
		}
		handleConfigCheck(os.Stdout, configMgr.Path(), configMgr.GetConfig())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configCheckCmd)
}

func handleConfigCheck(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "Configuration %s is valid\n\n", path)

	fmt.Fprintf(w, "  Suffix list:  %s\n", describeSource(cfg.SuffixList.Source()))
	fmt.Fprintf(w, "  IP lists:     %d\n", len(cfg.IPLists))
	if cfg.IPDatabase != nil {
		source := cfg.IPDatabase.Path
		if cfg.IPDatabase.URL != "" {
			source = cfg.IPDatabase.URL
		}
		fmt.Fprintf(w, "  IP database:  %s\n", source)
	}
	fmt.Fprintf(w, "  Listen:       %s\n", cfg.Listen())
	fmt.Fprintf(w, "  Cache dir:    %s\n", resolveCacheDir(cfg))

	sinks := cfg.LoggingSinks()
	if len(sinks) > 0 {
		names := make([]string, 0, len(sinks))
		for name := range sinks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  Log sink:     %s (%v)\n", name, sinks[name]["type"])
		}
	}

	if cfg.Realtime.Enabled() {
		fmt.Fprintf(w, "  Realtime:     channel %s\n", cfg.Realtime.Channel)
	}
}

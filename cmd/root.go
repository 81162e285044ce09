package cmd

import (
	"fmt"

	"hostclass/config"

	"github.com/spf13/cobra"
)

var (
	// Global flags shared across commands
	verbose    bool
	configFile string
	cacheDir   string

	// Version is set by the build process
	Version string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hostclass",
	Short: "hostclass - classify hostnames against the public suffix list",
	Long: `hostclass normalizes hostnames and IP literals, resolves their registrable
domain against the public suffix list and answers cookie-domain and
hierarchy questions. It runs one-shot from the command line or as a
long-lived HTTP service.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets appropriate flags.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Directory for caching external data (default from config or /var/cache/hostclass)")
}

// GetVersion returns the current version string
func GetVersion() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

// GetUserAgent returns the User-Agent string for HTTP requests
func GetUserAgent() string {
	return fmt.Sprintf("hostclass/%s", GetVersion())
}

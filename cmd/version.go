package cmd

import (
	"fmt"
	"regexp"
	"runtime"

	"github.com/spf13/cobra"
)

var releaseVersion = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[\w.]+)?$`)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the current version of hostclass.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hostclass version %s (%s)\n", GetVersion(), buildKind(GetVersion()))
		fmt.Printf("%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func buildKind(version string) string {
	if releaseVersion.MatchString(version) {
		return "release"
	}
	return "development build"
}

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"hostclass/normalization"
	"hostclass/suffixlist"

	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and update the public suffix list",
	Long: `Inspect the public suffix rules hostclass resolves against. The source
is the suffix_list section of the configuration; without one the list
compiled into the binary is used.`,
}

var rulesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show where the rules come from and how many there are",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(false)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		defer e.Close()

		handleRulesStats(os.Stdout, e)
	},
}

var rulesLookupCmd = &cobra.Command{
	Use:   "lookup <suffix>",
	Short: "Show the rule stored for a suffix",
	Long: `Look up the rule kind (exact, wildcard or exception) stored for a
suffix. Exits 1 when the suffix has no rule.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(false)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		defer e.Close()

		found, err := handleRulesLookup(os.Stdout, e.holder, args[0])
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		if !found {
			os.Exit(1)
		}
	},
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch the configured suffix list now",
	Long: `Revalidate the configured suffix list URL regardless of the cache age
and store the result in the cache directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(false)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		defer e.Close()

		if err := handleRulesUpdate(os.Stdout, e); err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesStatsCmd)
	rulesCmd.AddCommand(rulesLookupCmd)
	rulesCmd.AddCommand(rulesUpdateCmd)
}

func describeSource(source suffixlist.Source) string {
	switch {
	case source.URL != "" && source.Path != "":
		return fmt.Sprintf("%s (fallback %s)", source.URL, source.Path)
	case source.URL != "":
		return source.URL
	case source.Path != "":
		return fmt.Sprintf("%s (local file)", source.Path)
	default:
		return "embedded"
	}
}

func handleRulesStats(w io.Writer, e *env) {
	source := e.cfg.SuffixList.Source()

	fmt.Fprintf(w, "Suffix list:\n")
	fmt.Fprintf(w, "  Source:     %s\n", describeSource(source))
	if source.ICANNOnly {
		fmt.Fprintf(w, "  Sections:   ICANN only\n")
	}

	table, ok := e.holder.Load().(*suffixlist.Table)
	if !ok {
		fmt.Fprintf(w, "  Rules:      compiled into the binary\n")
		return
	}
	fmt.Fprintf(w, "  Rules:      %d\n", table.Len())
	fmt.Fprintf(w, "  TLDs:       %d\n", table.TLDCount())
}

func handleRulesLookup(w io.Writer, rules suffixlist.Rules, suffix string) (bool, error) {
	normalized, err := normalization.NormalizeDomain(suffix)
	if err != nil {
		return false, fmt.Errorf("invalid suffix %q: %w", suffix, err)
	}

	kind, ok := rules.Lookup(normalized)
	if !ok {
		fmt.Fprintf(w, "%s: no rule\n", normalized)
		return false, nil
	}
	fmt.Fprintf(w, "%s: %s\n", normalized, kind)
	return true, nil
}

func handleRulesUpdate(w io.Writer, e *env) error {
	source := e.cfg.SuffixList.Source()
	if source.URL == "" {
		return fmt.Errorf("no suffix list URL configured in %s", configFile)
	}

	updated, err := e.loader.ForceLoad()
	if err != nil {
		return err
	}

	if updated {
		fmt.Fprintf(w, "Suffix list updated from %s\n", source.URL)
	} else {
		fmt.Fprintf(w, "Suffix list is up to date\n")
	}
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"log"
	"net/netip"
	"os"
	"runtime"
	"sort"
	"time"

	"hostclass/cache"
	"hostclass/iplist"

	"github.com/spf13/cobra"
)

var iplistCmd = &cobra.Command{
	Use:   "iplist [list-name] [contains <ip>]",
	Short: "Inspect and query IP lists",
	Long: `Inspect the IP lists used to tag IP-literal hosts.

Usage:
  hostclass iplist                          # List all configured IP lists
  hostclass iplist <name>                   # Show statistics for a specific list
  hostclass iplist <name> contains <ip>     # Check if IP is in list (exit 1 if not)`,
	Args: cobra.MaximumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}

		var c *cache.Cache
		if len(args) > 0 {
			if c, err = newCache(cfg); err != nil {
				log.Printf("[ERROR] %v", err)
				os.Exit(1)
			}
		}

		found, err := handleIPListCommand(os.Stdout, args, cfg.IPLists, c)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		if !found {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(iplistCmd)
}

// handleIPListCommand reports false only when a contains query misses.
func handleIPListCommand(w io.Writer, args []string, lists map[string]iplist.ListConfig, c *cache.Cache) (bool, error) {
	if len(args) == 0 {
		showConfiguredLists(w, lists)
		return true, nil
	}

	listName := args[0]
	listCfg, ok := lists[listName]
	if !ok {
		return false, fmt.Errorf("IP list '%s' not found in configuration", listName)
	}

	switch {
	case len(args) == 1:
		return true, loadAndShowStats(w, listName, listCfg, c)
	case len(args) == 3 && args[1] == "contains":
		return checkIPInList(w, listName, listCfg, args[2], c)
	}

	return false, fmt.Errorf("invalid arguments. Usage:\n  hostclass iplist\n  hostclass iplist <name>\n  hostclass iplist <name> contains <ip>")
}

func showConfiguredLists(w io.Writer, lists map[string]iplist.ListConfig) {
	if len(lists) == 0 {
		fmt.Fprintln(w, "No IP lists configured")
		return
	}

	names := make([]string, 0, len(lists))
	for name := range lists {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "Configured IP lists:\n\n")
	for _, name := range names {
		listCfg := lists[name]
		fmt.Fprintf(w, "  %s:\n", name)
		if listCfg.URL != "" {
			fmt.Fprintf(w, "    Source: %s\n", listCfg.URL)
			if listCfg.RefreshIntervalSeconds > 0 {
				fmt.Fprintf(w, "    Refresh: every %d seconds\n", listCfg.RefreshIntervalSeconds)
			}
		}
		if listCfg.Path != "" {
			fmt.Fprintf(w, "    Source: %s (local file)\n", listCfg.Path)
		}
		fmt.Fprintln(w)
	}
}

// loadList builds a manager holding only listName and measures the cost.
func loadList(listName string, listCfg iplist.ListConfig, c *cache.Cache) (*iplist.Manager, time.Duration, uint64, error) {
	var memBefore runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&memBefore)

	start := time.Now()
	manager := iplist.New(map[string]iplist.ListConfig{listName: listCfg}, c, verbose)
	loadDuration := time.Since(start)

	if !manager.HasList(listName) {
		manager.Stop()
		return nil, 0, 0, fmt.Errorf("failed to load list '%s'", listName)
	}

	var memAfter runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&memAfter)

	var memUsed uint64
	if memAfter.Alloc > memBefore.Alloc {
		memUsed = memAfter.Alloc - memBefore.Alloc
	}
	return manager, loadDuration, memUsed, nil
}

func loadAndShowStats(w io.Writer, listName string, listCfg iplist.ListConfig, c *cache.Cache) error {
	fmt.Fprintf(w, "Loading IP list '%s'...\n\n", listName)

	manager, loadDuration, memUsed, err := loadList(listName, listCfg, c)
	if err != nil {
		return err
	}
	defer manager.Stop()

	source := listCfg.Path
	if listCfg.URL != "" {
		source = listCfg.URL
	}

	fmt.Fprintf(w, "List Statistics:\n")
	fmt.Fprintf(w, "  Name:        %s\n", listName)
	fmt.Fprintf(w, "  Source:      %s\n", source)
	fmt.Fprintf(w, "  Entries:     %d\n", manager.EntryCount(listName))
	fmt.Fprintf(w, "  Load Time:   %v\n", loadDuration)
	fmt.Fprintf(w, "  Memory Used: ~%s\n", formatBytes(memUsed))
	fmt.Fprintln(w)

	return nil
}

func checkIPInList(w io.Writer, listName string, listCfg iplist.ListConfig, ipAddr string, c *cache.Cache) (bool, error) {
	addr, err := netip.ParseAddr(ipAddr)
	if err != nil {
		return false, fmt.Errorf("invalid IP address %q: %w", ipAddr, err)
	}

	fmt.Fprintf(w, "Loading IP list '%s'...\n", listName)

	manager, loadDuration, memUsed, err := loadList(listName, listCfg, c)
	if err != nil {
		return false, err
	}
	defer manager.Stop()

	startLookup := time.Now()
	contains := manager.Contains(listName, addr.String())
	lookupDuration := time.Since(startLookup)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Results:\n")
	fmt.Fprintf(w, "  IP Address:     %s\n", addr)
	fmt.Fprintf(w, "  In List:        %v\n", contains)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Performance:\n")
	fmt.Fprintf(w, "  List Load Time: %v\n", loadDuration)
	fmt.Fprintf(w, "  Lookup Time:    %v\n", lookupDuration)
	fmt.Fprintf(w, "  Memory Used:    ~%s\n", formatBytes(memUsed))
	fmt.Fprintln(w)

	return contains, nil
}

// formatBytes formats bytes into human-readable format
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Package iplist maintains named IP/CIDR lists used to tag IP-literal
// hosts during classification (for example "tor" or "datacenter").
package iplist

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"net/netip"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"hostclass/cache"

	"github.com/phemmer/go-iptrie"
)

// DefaultRefreshInterval applies to URL lists without an interval.
const DefaultRefreshInterval = 24 * time.Hour

// ListConfig describes where a list comes from.
type ListConfig struct {
	URL                    string `json:"url,omitempty"`
	Name                   string `json:"name,omitempty"`
	Path                   string `json:"path,omitempty"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds,omitempty"`
}

func (c ListConfig) refreshInterval() time.Duration {
	if c.RefreshIntervalSeconds > 0 {
		return time.Duration(c.RefreshIntervalSeconds) * time.Second
	}
	return DefaultRefreshInterval
}

// IPList is one named list backed by a prefix trie.
type IPList struct {
	name    string
	config  ListConfig
	trie    *iptrie.Trie
	entries int
	loaded  bool
	mu      sync.RWMutex
}

// Manager owns a set of named lists and refreshes URL lists in the
// background.
type Manager struct {
	lists    map[string]*IPList
	cache    *cache.Cache
	verbose  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New loads every configured list. Lists that fail to load are logged
// and left out.
func New(listsConfig map[string]ListConfig, c *cache.Cache, verbose bool) *Manager {
	m := &Manager{
		lists:    make(map[string]*IPList),
		cache:    c,
		verbose:  verbose,
		stopChan: make(chan struct{}),
	}

	for name, cfg := range listsConfig {
		list := &IPList{name: name, config: cfg}
		if err := list.load(m.cache, m.verbose, false); err != nil {
			log.Printf("[ip_list] Failed to initialize list %s: %v", name, err)
			continue
		}
		m.lists[name] = list
	}

	for name, list := range m.lists {
		if list.config.URL != "" {
			m.wg.Add(1)
			go m.refreshLoop(name, list)
		}
	}

	return m
}

// load fills the trie. A forced load revalidates URL sources with the
// server regardless of the cache TTL.
func (l *IPList) load(c *cache.Cache, verbose bool, force bool) error {
	var (
		data    []byte
		source  string
		updated bool
		err     error
	)

	switch {
	case l.config.URL != "":
		source = l.config.URL
		if force {
			data, updated, err = c.Refresh(l.config.URL)
		} else {
			data, updated, err = c.Fetch(l.config.URL, l.config.refreshInterval())
		}
		if err != nil && l.config.Path != "" {
			log.Printf("[ip_list] Failed to fetch %s, trying local path: %v", l.name, err)
			source = l.config.Path
			data, err = os.ReadFile(l.config.Path)
			updated = true
		}
		if err != nil {
			return fmt.Errorf("failed to load from URL or path: %w", err)
		}
	case l.config.Path != "":
		source = l.config.Path
		data, err = os.ReadFile(l.config.Path)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		updated = true
	default:
		return fmt.Errorf("no URL or path configured")
	}

	l.mu.RLock()
	loaded := l.loaded
	l.mu.RUnlock()

	if !updated && loaded {
		if verbose {
			log.Printf("[ip_list] List '%s' not modified, skipping rebuild", l.name)
		}
		return nil
	}

	trie, count, err := parseList(data, source)
	if err != nil {
		return fmt.Errorf("failed to parse IPs: %w", err)
	}

	l.mu.Lock()
	l.trie = trie
	l.entries = count
	l.loaded = true
	l.mu.Unlock()

	log.Printf("[ip_list] Loaded list '%s' from %s: %d entries", l.name, source, count)
	return nil
}

// parseList reads one address or CIDR per line; "#" starts a comment.
// Invalid lines are logged and skipped. Empty lists yield a nil trie.
func parseList(data []byte, source string) (*iptrie.Trie, int, error) {
	trie := iptrie.NewTrie()
	count := 0
	lineNum := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		prefix, err := parseEntry(line)
		if err != nil {
			log.Printf("[ip_list] Invalid entry at line %d in %s: %s", lineNum, source, line)
			continue
		}
		trie.Insert(prefix, true)
		count++
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scanner error: %w", err)
	}
	if count == 0 {
		return nil, 0, nil
	}
	return trie, count, nil
}

func parseEntry(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (l *IPList) contains(addr netip.Addr) bool {
	l.mu.RLock()
	trie := l.trie
	l.mu.RUnlock()

	return trie != nil && trie.Contains(addr)
}

// Contains reports whether ip is in the named list.
func (m *Manager) Contains(listName string, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}

	m.mu.RLock()
	list, ok := m.lists[listName]
	m.mu.RUnlock()

	return ok && list.contains(addr.Unmap())
}

// Match returns the sorted names of all lists containing addr.
func (m *Manager) Match(addr netip.Addr) []string {
	if m == nil || !addr.IsValid() {
		return nil
	}
	addr = addr.Unmap()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, list := range m.lists {
		if list.contains(addr) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// HasList reports whether a list with that name is loaded.
func (m *Manager) HasList(listName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.lists[listName]
	return ok
}

// ListNames returns the loaded list names in sorted order.
func (m *Manager) ListNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.lists))
	for name := range m.lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntryCount returns the number of entries of a list.
func (m *Manager) EntryCount(listName string) int {
	m.mu.RLock()
	list, ok := m.lists[listName]
	m.mu.RUnlock()
	if !ok {
		return 0
	}

	list.mu.RLock()
	defer list.mu.RUnlock()
	return list.entries
}

func (m *Manager) refreshLoop(name string, list *IPList) {
	defer m.wg.Done()

	ticker := time.NewTicker(list.config.refreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := list.load(m.cache, m.verbose, false); err != nil {
				log.Printf("[ip_list] Failed to refresh list %s: %v", name, err)
			}
		case <-m.stopChan:
			return
		}
	}
}

// Stop ends background refreshing.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
}

// RefreshListsByBaseID force-refreshes every list named baseID or
// "<baseID>@<variant>". It returns the last error encountered.
func (m *Manager) RefreshListsByBaseID(baseID string) error {
	m.mu.RLock()
	var matched []*IPList
	for name, list := range m.lists {
		if matchesBaseID(name, baseID) {
			matched = append(matched, list)
		}
	}
	m.mu.RUnlock()

	if len(matched) == 0 {
		log.Printf("[ip_list] No lists found matching base ID: %s", baseID)
		return nil
	}

	log.Printf("[ip_list] Refreshing %d list(s) matching base ID: %s", len(matched), baseID)

	var lastErr error
	for _, list := range matched {
		if err := list.load(m.cache, m.verbose, true); err != nil {
			log.Printf("[ip_list] Failed to refresh list %s: %v", list.name, err)
			lastErr = err
		}
	}
	return lastErr
}

func matchesBaseID(name, baseID string) bool {
	return name == baseID || strings.HasPrefix(name, baseID+"@")
}

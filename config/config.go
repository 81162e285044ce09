package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"hostclass/iplist"
	"hostclass/logger"
	"hostclass/suffixlist"

	"github.com/fsnotify/fsnotify"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/hostclass/config.json"

// DefaultListen is the address the service binds when server.listen is empty.
const DefaultListen = "127.0.0.1:8053"

const reloadDebounce = 250 * time.Millisecond

// Config represents the complete application configuration
type Config struct {
	SuffixList *SuffixListConfig            `json:"suffix_list,omitempty"`
	IPLists    map[string]iplist.ListConfig `json:"ip_lists,omitempty"`
	IPDatabase *IPDatabaseConfig            `json:"ip_database,omitempty"`
	Logging    *LoggingConfig               `json:"logging,omitempty"`
	Server     *ServerConfig                `json:"server,omitempty"`
	Realtime   *RealtimeConfig              `json:"realtime,omitempty"`
	CacheDir   string                       `json:"cache_dir,omitempty"`
}

type SuffixListConfig struct {
	URL                    string `json:"url,omitempty"`
	Path                   string `json:"path,omitempty"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds,omitempty"`
	ICANNOnly              bool   `json:"icann_only,omitempty"`
}

// Source converts the section into a loader source. A nil section selects
// the embedded list.
func (c *SuffixListConfig) Source() suffixlist.Source {
	if c == nil {
		return suffixlist.Source{}
	}
	return suffixlist.Source{
		URL:             c.URL,
		Path:            c.Path,
		RefreshInterval: time.Duration(c.RefreshIntervalSeconds) * time.Second,
		ICANNOnly:       c.ICANNOnly,
	}
}

type IPDatabaseConfig struct {
	URL                    string `json:"url,omitempty"`
	Path                   string `json:"path,omitempty"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds,omitempty"`
}

// RefreshInterval defaults to 24 hours.
func (c *IPDatabaseConfig) RefreshInterval() time.Duration {
	if c == nil || c.RefreshIntervalSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

type LoggingConfig struct {
	Sinks map[string]map[string]interface{} `json:"sinks,omitempty"`
}

type ServerConfig struct {
	Listen string `json:"listen,omitempty"`

	// Names of ip_lists whose members may report the client address in
	// X-Forwarded-For or X-Real-IP.
	TrustedProxyLists []string `json:"trusted_proxy_lists,omitempty"`

	// When set, only clients in one of these ip_lists may use the API.
	AllowLists []string `json:"allow_lists,omitempty"`
}

type RealtimeConfig struct {
	Key       string `json:"key"`
	Host      string `json:"host,omitempty"`
	Port      int    `json:"port,omitempty"`
	Channel   string `json:"channel"`
	AuthURL   string `json:"auth_url,omitempty"`
	Token     string `json:"token,omitempty"`
	Encrypted bool   `json:"encrypted,omitempty"`
}

// Enabled reports whether enough is configured to connect.
func (c *RealtimeConfig) Enabled() bool {
	return c != nil && c.Key != "" && c.Channel != ""
}

// Listen returns the configured listen address or DefaultListen.
func (c *Config) Listen() string {
	if c == nil || c.Server == nil || c.Server.Listen == "" {
		return DefaultListen
	}
	return c.Server.Listen
}

// TrustedProxyLists returns the trusted proxy list names.
func (c *Config) TrustedProxyLists() []string {
	if c == nil || c.Server == nil {
		return nil
	}
	return c.Server.TrustedProxyLists
}

// AllowLists returns the names of the lists allowed to use the API.
func (c *Config) AllowLists() []string {
	if c == nil || c.Server == nil {
		return nil
	}
	return c.Server.AllowLists
}

// LoggingSinks returns the sink definitions, nil when logging is not configured.
func (c *Config) LoggingSinks() map[string]map[string]interface{} {
	if c == nil || c.Logging == nil {
		return nil
	}
	return c.Logging.Sinks
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for name, list := range c.IPLists {
		if list.URL == "" && list.Path == "" {
			return fmt.Errorf("ip list %q needs a url or a path", name)
		}
	}
	for _, name := range append(c.TrustedProxyLists(), c.AllowLists()...) {
		if _, ok := c.IPLists[name]; !ok {
			return fmt.Errorf("server references unknown ip list %q", name)
		}
	}
	if c.SuffixList != nil && c.SuffixList.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("suffix_list.refresh_interval_seconds must not be negative")
	}
	for name, sink := range c.LoggingSinks() {
		sinkType, ok := sink["type"].(string)
		if !ok {
			return fmt.Errorf("logging sink %q has no type", name)
		}
		if !slices.Contains(logger.SinkTypes(), sinkType) {
			return fmt.Errorf("logging sink %q has unknown type %q (supported: %v)", name, sinkType, logger.SinkTypes())
		}
	}
	return nil
}

// Manager manages the configuration with hot-reload support
type Manager struct {
	configPath string
	config     *Config
	callbacks  []func(*Config)
	mu         sync.RWMutex

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a new configuration manager and loads the file.
func NewManager(configPath string) (*Manager, error) {
	m := &Manager{
		configPath: configPath,
		stopChan:   make(chan struct{}),
	}

	if err := m.Load(); err != nil {
		return nil, err
	}

	return m, nil
}

// LoadOrDefault behaves like NewManager, except that a missing file yields
// an empty configuration, which selects the embedded suffix list.
func LoadOrDefault(configPath string) (*Manager, error) {
	m, err := NewManager(configPath)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	return &Manager{
		configPath: configPath,
		config:     &Config{},
		stopChan:   make(chan struct{}),
	}, nil
}

// Path returns the file the manager reads.
func (m *Manager) Path() string {
	return m.configPath
}

// Load loads or reloads the configuration from disk
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	oldConfig := m.config
	m.config = cfg
	callbacks := make([]func(*Config), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	// Listeners only hear about reloads, not the initial load
	if oldConfig != nil {
		for _, callback := range callbacks {
			if callback != nil {
				callback(cfg)
			}
		}
	}

	log.Printf("[config] Loaded configuration from %s (ip lists: %d, logging sinks: %d)",
		m.configPath, len(cfg.IPLists), len(cfg.LoggingSinks()))

	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange adds a callback to be called when configuration changes
func (m *Manager) OnChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// StartWatcher reloads the configuration whenever the file is written,
// created or renamed into place. The directory is watched so editors that
// replace the file are noticed.
func (m *Manager) StartWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	path, err := filepath.Abs(m.configPath)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	m.watcher = watcher

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, m.reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[config] Watcher error: %v", err)
			case <-m.stopChan:
				return
			}
		}
	}()

	return nil
}

func (m *Manager) reload() {
	log.Printf("[config] Configuration file changed, reloading...")
	if err := m.Load(); err != nil {
		log.Printf("[config] Failed to reload configuration: %v", err)
		return
	}
	log.Printf("[config] Configuration reloaded successfully")
}

// Stop stops the configuration file watcher
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
	m.wg.Wait()
}

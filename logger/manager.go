package logger

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Manager fans entries out to the configured sinks.
type Manager struct {
	userAgent   string
	sinks       map[string]Sink
	sinkConfigs map[string]string // name -> config hash
	mu          sync.RWMutex
}

// NewManager creates a manager without sinks. userAgent is passed to
// sinks that talk HTTP.
func NewManager(userAgent string) *Manager {
	return &Manager{
		userAgent:   userAgent,
		sinks:       make(map[string]Sink),
		sinkConfigs: make(map[string]string),
	}
}

// Write sends entry to every sink. Sink failures are logged, not returned.
func (m *Manager) Write(entry *LogEntry) {
	if m == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sink := range m.sinks {
		if err := sink.Write(entry); err != nil {
			log.Printf("[logger] Failed to write to sink %s: %v", sink.Name(), err)
		}
	}
}

// UpdateSinks reconciles the running sinks with sinksConfig. Sinks whose
// configuration hash is unchanged are kept as they are. Sinks that fail to
// build are skipped and reported in the returned error.
func (m *Manager) UpdateSinks(sinksConfig map[string]map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, sink := range m.sinks {
		if _, keep := sinksConfig[name]; keep {
			continue
		}
		log.Printf("[logger] Removing sink: %s", name)
		if err := sink.Close(); err != nil {
			log.Printf("[logger] Error closing sink %s: %v", name, err)
		}
		delete(m.sinks, name)
		delete(m.sinkConfigs, name)
	}

	var failed []string
	for name, config := range sinksConfig {
		hash := computeConfigHash(config)

		if existing, ok := m.sinkConfigs[name]; ok {
			if existing == hash {
				continue
			}
			log.Printf("[logger] Sink %s config changed, recreating", name)
			if err := m.sinks[name].Close(); err != nil {
				log.Printf("[logger] Error closing old sink %s: %v", name, err)
			}
			delete(m.sinks, name)
			delete(m.sinkConfigs, name)
		}

		sink, err := CreateSink(name, config, m.userAgent)
		if err != nil {
			log.Printf("[logger] Failed to create sink %s: %v", name, err)
			failed = append(failed, name)
			continue
		}

		m.sinks[name] = sink
		m.sinkConfigs[name] = hash
		log.Printf("[logger] Sink %s ready", name)
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("failed to create sinks: %v", failed)
	}
	return nil
}

// Close closes all sinks.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, sink := range m.sinks {
		if err := sink.Close(); err != nil {
			log.Printf("[logger] Error closing sink %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	m.sinks = make(map[string]Sink)
	m.sinkConfigs = make(map[string]string)

	return firstErr
}

// HasSinks reports whether any sink is configured.
func (m *Manager) HasSinks() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks) > 0
}

// SinkCount returns the number of running sinks.
func (m *Manager) SinkCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// SinkNames returns the names of the running sinks in sorted order.
func (m *Manager) SinkNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sinks))
	for name := range m.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func computeConfigHash(config map[string]interface{}) string {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Sprintf("error-%d", len(config))
	}
	return fmt.Sprintf("%x", sha256.Sum256(raw))
}

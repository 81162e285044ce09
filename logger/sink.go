// Package logger ships structured classification events to configurable
// sinks. Operational messages still go through the standard log package.
package logger

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Sink is a destination for log entries.
type Sink interface {
	Write(entry *LogEntry) error
	Close() error
	Name() string

	// ConfigHash identifies the configuration the sink was built from, so
	// that reloads only recreate sinks whose settings changed.
	ConfigHash() string
}

// LogEntry is a structured event. Nested maps are allowed.
type LogEntry struct {
	Data map[string]interface{}
}

// NewEntry creates an entry for event stamped with a ULID and the current
// time.
func NewEntry(event string) *LogEntry {
	return &LogEntry{
		Data: map[string]interface{}{
			"id":        ulid.Make().String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"event":     event,
		},
	}
}

// Set stores value under key and returns the entry.
func (e *LogEntry) Set(key string, value interface{}) *LogEntry {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// MarshalJSON marshals the entry data.
func (e *LogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Data)
}

// Flatten returns the entry as a single-level map with dotted keys, e.g.
// {"result":{"tld":"com"}} becomes {"result.tld":"com"}. Values pass
// through JSON, so numbers come back as float64. Arrays are kept.
func (e *LogEntry) Flatten() (map[string]interface{}, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}

	var nested map[string]interface{}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, err
	}

	flat := make(map[string]interface{}, len(nested))
	flatten("", nested, flat)
	return flat, nil
}

func flatten(prefix string, in map[string]interface{}, out map[string]interface{}) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]interface{}); ok {
			flatten(key, m, out)
			continue
		}
		out[key] = v
	}
}

// SinkFactory builds a sink from its configuration block.
type SinkFactory func(name string, config map[string]interface{}, userAgent string) (Sink, error)

var (
	factoriesMu   sync.RWMutex
	sinkFactories = make(map[string]SinkFactory)
)

// RegisterSinkFactory makes a sink type available to CreateSink.
func RegisterSinkFactory(sinkType string, factory SinkFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	sinkFactories[sinkType] = factory
}

// SinkTypes lists the registered sink types.
func SinkTypes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]string, 0, len(sinkFactories))
	for t := range sinkFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// CreateSink builds a sink using the factory named by config["type"].
func CreateSink(name string, config map[string]interface{}, userAgent string) (Sink, error) {
	sinkType, ok := config["type"].(string)
	if !ok {
		return nil, fmt.Errorf("sink %s: missing or invalid 'type' field", name)
	}

	factoriesMu.RLock()
	factory, ok := sinkFactories[sinkType]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sink %s: unknown sink type '%s'", name, sinkType)
	}

	return factory(name, config, userAgent)
}

// decodeConfig converts a raw configuration block into a typed struct.
func decodeConfig(config map[string]interface{}, v interface{}) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return json.Unmarshal(raw, v)
}

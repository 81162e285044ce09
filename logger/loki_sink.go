package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const (
	lokiBufferSize   = 10000
	lokiBatchSize    = 100
	lokiBatchTimeout = time.Second
)

// LokiSink pushes entries to the Loki push API in batches.
type LokiSink struct {
	name       string
	url        string
	labels     map[string]string
	tenantID   string
	username   string
	password   string
	userAgent  string
	client     *http.Client
	channel    chan *LogEntry
	configHash string
	drops      atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// LokiSinkConfig is the configuration block of a "loki" sink.
type LokiSinkConfig struct {
	URL      string            `json:"url"`
	Labels   map[string]string `json:"labels"`
	TenantID string            `json:"tenant_id"`
	Username string            `json:"username"`
	Password string            `json:"password"`
}

type lokiStream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

type lokiPushRequest struct {
	Streams []lokiStream `json:"streams"`
}

func init() {
	RegisterSinkFactory("loki", NewLokiSink)
}

// NewLokiSink starts a batching sink. The "job" label defaults to
// "hostclass".
func NewLokiSink(name string, config map[string]interface{}, userAgent string) (Sink, error) {
	var cfg LokiSinkConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse loki sink config: %w", err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("loki sink requires 'url' field")
	}

	labels := make(map[string]string, len(cfg.Labels)+1)
	for k, v := range cfg.Labels {
		labels[k] = v
	}
	if _, ok := labels["job"]; !ok {
		labels["job"] = "hostclass"
	}

	sink := &LokiSink{
		name:       name,
		url:        cfg.URL,
		labels:     labels,
		tenantID:   cfg.TenantID,
		username:   cfg.Username,
		password:   cfg.Password,
		userAgent:  userAgent,
		client:     &http.Client{Timeout: 10 * time.Second},
		channel:    make(chan *LogEntry, lokiBufferSize),
		configHash: computeConfigHash(config),
	}

	sink.wg.Add(1)
	go sink.run()

	log.Printf("[logger:loki] Loki sink %s initialized: url=%s", name, cfg.URL)
	return sink, nil
}

// Write queues the entry without blocking. A full buffer drops the entry.
func (s *LokiSink) Write(entry *LogEntry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("loki sink %s is closed", s.name)
	}

	select {
	case s.channel <- entry:
		return nil
	default:
		drops := s.drops.Add(1)
		if drops%100 == 1 {
			log.Printf("[logger:loki] Sink %s buffer full, total drops: %d", s.name, drops)
		}
		return fmt.Errorf("buffer full, event dropped")
	}
}

// Close flushes buffered entries and stops the sink.
func (s *LokiSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.channel)
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[logger:loki] Loki sink %s closed", s.name)
	return nil
}

func (s *LokiSink) Name() string       { return s.name }
func (s *LokiSink) ConfigHash() string { return s.configHash }

func (s *LokiSink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(lokiBatchTimeout)
	defer ticker.Stop()

	batch := make([]*LogEntry, 0, lokiBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.push(ctx, batch); err != nil {
			log.Printf("[logger:loki] Sink %s dropped %d entries: %v", s.name, len(batch), err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-s.channel:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= lokiBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *LokiSink) push(ctx context.Context, entries []*LogEntry) error {
	values := make([][]string, 0, len(entries))
	for _, entry := range entries {
		ts := time.Now()
		if raw, ok := entry.Data["timestamp"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				ts = parsed
			}
		}

		flat, err := entry.Flatten()
		if err != nil {
			continue
		}
		line, err := json.Marshal(flat)
		if err != nil {
			continue
		}
		values = append(values, []string{strconv.FormatInt(ts.UnixNano(), 10), string(line)})
	}
	if len(values) == 0 {
		return nil
	}

	body, err := json.Marshal(lokiPushRequest{
		Streams: []lokiStream{{Stream: s.labels, Values: values}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	if s.tenantID != "" {
		req.Header.Set("X-Scope-OrgID", s.tenantID)
	}
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki returned status %d", resp.StatusCode)
	}
	return nil
}

package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
)

const axiomBufferSize = 10000

// AxiomSink streams entries to an Axiom dataset through IngestChannel.
type AxiomSink struct {
	name       string
	dataset    string
	client     *axiom.Client
	channel    chan axiom.Event
	cancel     context.CancelFunc
	configHash string
	drops      atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// AxiomSinkConfig is the configuration block of an "axiom" sink.
type AxiomSinkConfig struct {
	Token   string `json:"token"`
	Dataset string `json:"dataset"`
	URL     string `json:"url,omitempty"`
}

func init() {
	RegisterSinkFactory("axiom", NewAxiomSink)
}

// NewAxiomSink creates the client and starts the ingestion goroutine.
func NewAxiomSink(name string, config map[string]interface{}, _ string) (Sink, error) {
	var cfg AxiomSinkConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse axiom sink config: %w", err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("axiom sink requires 'token' field")
	}
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("axiom sink requires 'dataset' field")
	}

	options := []axiom.Option{axiom.SetToken(cfg.Token)}
	if cfg.URL != "" {
		options = append(options, axiom.SetURL(cfg.URL))
	}

	client, err := axiom.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Axiom client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sink := &AxiomSink{
		name:       name,
		dataset:    cfg.Dataset,
		client:     client,
		channel:    make(chan axiom.Event, axiomBufferSize),
		cancel:     cancel,
		configHash: computeConfigHash(config),
		done:       make(chan struct{}),
	}

	go sink.runIngestion(ctx)

	log.Printf("[logger:axiom] Axiom sink %s initialized: dataset=%s", name, cfg.Dataset)
	return sink, nil
}

// Write queues the entry without blocking. A full buffer drops the entry.
func (s *AxiomSink) Write(entry *LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	var event axiom.Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to convert to axiom event: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("axiom sink %s is closed", s.name)
	}

	select {
	case s.channel <- event:
		return nil
	default:
		drops := s.drops.Add(1)
		if drops%100 == 1 {
			log.Printf("[logger:axiom] Sink %s buffer full, total drops: %d", s.name, drops)
		}
		return fmt.Errorf("buffer full, event dropped")
	}
}

// Close stops ingestion. Buffered events that were not yet sent are lost.
func (s *AxiomSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	close(s.channel)
	s.mu.Unlock()

	<-s.done
	log.Printf("[logger:axiom] Axiom sink %s closed", s.name)
	return nil
}

func (s *AxiomSink) Name() string       { return s.name }
func (s *AxiomSink) ConfigHash() string { return s.configHash }

// runIngestion keeps IngestChannel running, backing off exponentially
// after errors.
func (s *AxiomSink) runIngestion(ctx context.Context) {
	defer close(s.done)

	const (
		initialRetryDelay = time.Second
		maxRetryDelay     = 5 * time.Minute
	)

	retryDelay := initialRetryDelay
	failures := 0

	for {
		started := time.Now()
		_, err := s.client.IngestChannel(ctx, s.dataset, s.channel, ingest.SetTimestampField("timestamp"))

		if ctx.Err() != nil {
			return
		}

		switch {
		case err == nil:
			// channel drained and closed
			return
		case errors.Is(err, context.Canceled):
			continue
		}

		failures++
		log.Printf("[logger:axiom] Sink %s ingestion error (failure #%d) after %v: %v. Retrying in %v",
			s.name, failures, time.Since(started).Round(time.Millisecond), err, retryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelay):
		}

		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
)

// FileSink appends entries as JSON lines to a file.
type FileSink struct {
	name       string
	path       string
	file       *os.File
	configHash string
	mu         sync.Mutex
}

// FileSinkConfig is the configuration block of a "file" sink.
type FileSinkConfig struct {
	Path string `json:"path"`
}

func init() {
	RegisterSinkFactory("file", NewFileSink)
}

// NewFileSink opens the configured file for appending.
func NewFileSink(name string, config map[string]interface{}, _ string) (Sink, error) {
	var cfg FileSinkConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse file sink config: %w", err)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("file sink requires 'path' field")
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Path, err)
	}

	log.Printf("[logger:file] File sink %s writing to %s", name, cfg.Path)

	return &FileSink{
		name:       name,
		path:       cfg.Path,
		file:       file,
		configHash: computeConfigHash(config),
	}, nil
}

func (s *FileSink) Write(entry *LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("file sink %s is closed", s.name)
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *FileSink) Name() string       { return s.name }
func (s *FileSink) ConfigHash() string { return s.configHash }

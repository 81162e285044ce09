package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestManagerFileSink(t *testing.T) {
	manager := NewManager("hostclass/test")
	defer manager.Close()

	logFile := filepath.Join(t.TempDir(), "classify.log")
	err := manager.UpdateSinks(map[string]map[string]interface{}{
		"local": {"type": "file", "path": logFile},
	})
	if err != nil {
		t.Fatalf("Failed to update sinks: %v", err)
	}

	if !manager.HasSinks() || manager.SinkCount() != 1 {
		t.Fatalf("expected one sink, got %d", manager.SinkCount())
	}

	manager.Write(NewEntry("classify").Set("host", "www.example.com"))
	manager.Write(NewEntry("cookie").Set("legal", true))

	lines := readLines(t, logFile)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["host"] != "www.example.com" || lines[1]["legal"] != true {
		t.Errorf("unexpected lines: %v", lines)
	}
}

func TestManagerKeepsUnchangedSinks(t *testing.T) {
	manager := NewManager("")
	defer manager.Close()

	dir := t.TempDir()
	cfg := map[string]map[string]interface{}{
		"a": {"type": "file", "path": filepath.Join(dir, "a.log")},
		"b": {"type": "file", "path": filepath.Join(dir, "b.log")},
	}
	if err := manager.UpdateSinks(cfg); err != nil {
		t.Fatal(err)
	}

	manager.mu.RLock()
	before := manager.sinks["a"]
	manager.mu.RUnlock()

	cfg["b"] = map[string]interface{}{"type": "file", "path": filepath.Join(dir, "b2.log")}
	delete(cfg, "a")
	cfg["c"] = map[string]interface{}{"type": "file", "path": filepath.Join(dir, "c.log")}
	cfg["a"] = map[string]interface{}{"type": "file", "path": filepath.Join(dir, "a.log")}

	if err := manager.UpdateSinks(cfg); err != nil {
		t.Fatal(err)
	}

	manager.mu.RLock()
	after := manager.sinks["a"]
	manager.mu.RUnlock()

	if before != after {
		t.Error("sink with unchanged config was recreated")
	}
	if got := manager.SinkNames(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("SinkNames() = %v", got)
	}

	manager.Write(NewEntry("classify"))
	if _, err := os.Stat(filepath.Join(dir, "b2.log")); err != nil {
		t.Errorf("recreated sink did not open its new file: %v", err)
	}
}

func TestManagerRemovesSinks(t *testing.T) {
	manager := NewManager("")
	defer manager.Close()

	path := filepath.Join(t.TempDir(), "x.log")
	if err := manager.UpdateSinks(map[string]map[string]interface{}{"x": {"type": "file", "path": path}}); err != nil {
		t.Fatal(err)
	}
	if err := manager.UpdateSinks(nil); err != nil {
		t.Fatal(err)
	}
	if manager.HasSinks() {
		t.Error("expected all sinks removed")
	}
}

func TestManagerReportsBrokenSinks(t *testing.T) {
	manager := NewManager("")
	defer manager.Close()

	err := manager.UpdateSinks(map[string]map[string]interface{}{
		"good": {"type": "file", "path": filepath.Join(t.TempDir(), "ok.log")},
		"bad":  {"type": "file"},
	})
	if err == nil {
		t.Fatal("expected error for broken sink")
	}
	if manager.SinkCount() != 1 {
		t.Errorf("working sink should still be created, got %d sinks", manager.SinkCount())
	}
}

func TestNilManagerWrite(t *testing.T) {
	var manager *Manager
	manager.Write(NewEntry("classify"))
	if manager.HasSinks() {
		t.Error("nil manager has no sinks")
	}
}

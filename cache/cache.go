// Package cache keeps downloaded rule data (suffix lists, IP lists and the
// ASN database) on disk so the classifier can start without network access
// and revalidate with ETags afterwards.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotInitialized is returned by methods called on a nil cache.
var ErrNotInitialized = errors.New("cache not initialized")

// Cache is a file-based store for remote resources, keyed by URL.
type Cache struct {
	cacheDir   string
	userAgent  string
	httpClient *http.Client
	verbose    bool
}

// Entry is a cached document with its validator.
type Entry struct {
	Data      []byte    `json:"data"`
	ETag      string    `json:"etag,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type fileMeta struct {
	ETag      string    `json:"etag,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCache creates the cache directory if needed.
func NewCache(cacheDir string, userAgent string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Cache{
		cacheDir:  cacheDir,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// SetVerbose enables logging of cache hits.
func (c *Cache) SetVerbose(verbose bool) {
	if c != nil {
		c.verbose = verbose
	}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.cacheDir
}

// Fetch returns the document at url. A cached copy younger than maxAge is
// returned without contacting the server. changed reports whether the
// returned data differs from what was cached before the call.
func (c *Cache) Fetch(url string, maxAge time.Duration) (data []byte, changed bool, err error) {
	if c == nil {
		return nil, false, ErrNotInitialized
	}

	entry, _ := c.loadEntry(c.entryPath(url))
	if entry != nil && time.Since(entry.Timestamp) < maxAge {
		if c.verbose {
			log.Printf("[cache] Using cached data for %s (age: %v)", url, time.Since(entry.Timestamp).Round(time.Second))
		}
		return entry.Data, false, nil
	}

	return c.revalidate(url, entry)
}

// Refresh revalidates url with the server regardless of the cached age.
func (c *Cache) Refresh(url string) ([]byte, bool, error) {
	if c == nil {
		return nil, false, ErrNotInitialized
	}

	entry, _ := c.loadEntry(c.entryPath(url))
	return c.revalidate(url, entry)
}

func (c *Cache) revalidate(url string, entry *Entry) ([]byte, bool, error) {
	path := c.entryPath(url)

	var etag string
	if entry != nil {
		etag = entry.ETag
	}

	log.Printf("[cache] Fetching %s", url)
	data, newETag, err := c.get(url, etag)
	if err != nil {
		if entry != nil {
			log.Printf("[cache] Fetch failed, using stale cache for %s: %v", url, err)
			return entry.Data, false, nil
		}
		return nil, false, err
	}

	// 304 Not Modified
	if data == nil && entry != nil {
		entry.Timestamp = time.Now()
		if err := c.saveEntry(path, entry); err != nil {
			log.Printf("[cache] Failed to update timestamp for %s: %v", url, err)
		}
		return entry.Data, false, nil
	}

	changed := entry == nil || !bytes.Equal(entry.Data, data)
	if err := c.saveEntry(path, &Entry{Data: data, ETag: newETag, Timestamp: time.Now()}); err != nil {
		log.Printf("[cache] Failed to save %s: %v", url, err)
	}

	return data, changed, nil
}

// FetchFile downloads url into a file inside the cache directory and
// returns its path. Used for binary databases that are opened in place.
func (c *Cache) FetchFile(url string, maxAge time.Duration) (string, error) {
	if c == nil {
		return "", ErrNotInitialized
	}

	key := c.key(url)
	dataFile := filepath.Join(c.cacheDir, key+"_file.bin")
	metaFile := filepath.Join(c.cacheDir, key+"_file.meta")

	var meta fileMeta
	if raw, err := os.ReadFile(metaFile); err == nil {
		if err := json.Unmarshal(raw, &meta); err == nil && time.Since(meta.Timestamp) < maxAge {
			if _, err := os.Stat(dataFile); err == nil {
				if c.verbose {
					log.Printf("[cache] Using cached file for %s (age: %v)", url, time.Since(meta.Timestamp).Round(time.Second))
				}
				return dataFile, nil
			}
		}
	}

	log.Printf("[cache] Downloading %s", url)
	resp, err := c.do(url, meta.ETag)
	if err != nil {
		if _, statErr := os.Stat(dataFile); statErr == nil {
			log.Printf("[cache] Download failed, using stale file for %s: %v", url, err)
			return dataFile, nil
		}
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		meta.Timestamp = time.Now()
		c.writeMeta(metaFile, meta)
		return dataFile, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	tmp := dataFile + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	size, err := io.Copy(out, resp.Body)
	out.Close()
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dataFile); err != nil {
		os.Remove(tmp)
		return "", err
	}

	c.writeMeta(metaFile, fileMeta{ETag: resp.Header.Get("ETag"), Timestamp: time.Now()})

	log.Printf("[cache] Downloaded %s (size: %.2f MB)", url, float64(size)/1024/1024)
	return dataFile, nil
}

// Load returns the cached copy of url without fetching.
func (c *Cache) Load(url string) ([]byte, time.Time, error) {
	if c == nil {
		return nil, time.Time{}, ErrNotInitialized
	}
	entry, err := c.loadEntry(c.entryPath(url))
	if err != nil {
		return nil, time.Time{}, err
	}
	return entry.Data, entry.Timestamp, nil
}

// Store saves data for url without a validator.
func (c *Cache) Store(url string, data []byte) error {
	if c == nil {
		return ErrNotInitialized
	}
	return c.saveEntry(c.entryPath(url), &Entry{Data: data, Timestamp: time.Now()})
}

// Clear removes every cached document and file and returns how many
// files were deleted.
func (c *Cache) Clear() (int, error) {
	if c == nil {
		return 0, ErrNotInitialized
	}

	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isCacheFile(name) {
			continue
		}
		if err := os.Remove(filepath.Join(c.cacheDir, name)); err != nil {
			log.Printf("[cache] Failed to remove %s: %v", name, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Remove deletes the cached document for url.
func (c *Cache) Remove(url string) error {
	if c == nil {
		return ErrNotInitialized
	}
	return os.Remove(c.entryPath(url))
}

func isCacheFile(name string) bool {
	return strings.HasSuffix(name, ".json") ||
		strings.HasSuffix(name, "_file.bin") ||
		strings.HasSuffix(name, "_file.meta")
}

func (c *Cache) key(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])
}

func (c *Cache) entryPath(url string) string {
	return filepath.Join(c.cacheDir, c.key(url)+".json")
}

func (c *Cache) loadEntry(path string) (*Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Cache) saveEntry(path string, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func (c *Cache) writeMeta(path string, meta fileMeta) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		log.Printf("[cache] Failed to write %s: %v", filepath.Base(path), err)
	}
}

func (c *Cache) do(url, etag string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	return c.httpClient.Do(req)
}

// get returns nil data for 304 Not Modified.
func (c *Cache) get(url, etag string) ([]byte, string, error) {
	resp, err := c.do(url, etag)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, etag, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("ETag"), nil
}

package suffixlist

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hostclass/cache"

	"github.com/fsnotify/fsnotify"
)

// DefaultRefreshInterval is used when a URL source has no interval set.
const DefaultRefreshInterval = 24 * time.Hour

// Source says where a suffix list comes from. With neither URL nor Path
// the embedded list is served.
type Source struct {
	URL             string
	Path            string
	RefreshInterval time.Duration
	ICANNOnly       bool
}

// Loader keeps a Holder filled from a Source. A URL source is fetched
// through the cache and refreshed periodically, with Path as fallback. A
// path-only source is reloaded whenever the file changes.
type Loader struct {
	source  Source
	cache   *cache.Cache
	holder  *Holder
	verbose bool

	mu      sync.Mutex
	loaded  bool
	stopped bool

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLoader creates a loader publishing into holder. c may be nil for
// path-only and embedded sources.
func NewLoader(source Source, c *cache.Cache, holder *Holder, verbose bool) *Loader {
	return &Loader{
		source:   source,
		cache:    c,
		holder:   holder,
		verbose:  verbose,
		stopChan: make(chan struct{}),
	}
}

// Load reads the list, honouring the cache TTL. It reports whether a new
// table was published.
func (l *Loader) Load() (bool, error) {
	return l.load(false)
}

// ForceLoad revalidates a URL source with the server regardless of the
// cache TTL. ETags are still sent.
func (l *Loader) ForceLoad() (bool, error) {
	return l.load(true)
}

func (l *Loader) load(force bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// a stopped loader may have been replaced; it must not overwrite the
	// rules its successor published
	if l.stopped {
		return false, nil
	}

	if l.source.URL == "" && l.source.Path == "" {
		if !l.loaded {
			l.holder.Store(Embedded())
			l.loaded = true
			log.Printf("[suffix_list] Using embedded public suffix list")
		}
		return false, nil
	}

	data, source, updated, err := l.fetch(force)
	if err != nil {
		return false, err
	}

	if !updated && l.loaded {
		if l.verbose {
			log.Printf("[suffix_list] %s not modified, keeping current rules", source)
		}
		return false, nil
	}

	var opts []ParseOption
	if l.source.ICANNOnly {
		opts = append(opts, ICANNOnly())
	}

	table, err := Parse(bytes.NewReader(data), opts...)
	if err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", source, err)
	}
	if table.Len() == 0 {
		return false, fmt.Errorf("suffix list from %s has no rules", source)
	}

	l.holder.Store(table)
	l.loaded = true

	log.Printf("[suffix_list] Loaded %d rules (%d TLDs) from %s", table.Len(), table.TLDCount(), source)
	return true, nil
}

func (l *Loader) fetch(force bool) (data []byte, source string, updated bool, err error) {
	if l.source.URL != "" {
		source = l.source.URL
		if force {
			data, updated, err = l.cache.Refresh(l.source.URL)
		} else {
			data, updated, err = l.cache.Fetch(l.source.URL, l.refreshInterval())
		}
		if err == nil {
			return data, source, updated, nil
		}
		if l.source.Path == "" {
			return nil, source, false, fmt.Errorf("failed to fetch suffix list: %w", err)
		}
		log.Printf("[suffix_list] Failed to fetch %s, trying local path: %v", l.source.URL, err)
	}

	source = l.source.Path
	data, err = os.ReadFile(l.source.Path)
	if err != nil {
		return nil, source, false, fmt.Errorf("failed to read suffix list: %w", err)
	}
	return data, source, true, nil
}

func (l *Loader) refreshInterval() time.Duration {
	if l.source.RefreshInterval > 0 {
		return l.source.RefreshInterval
	}
	return DefaultRefreshInterval
}

// Start launches background refreshing: a ticker for URL sources and a
// file watcher for path-only sources.
func (l *Loader) Start() error {
	switch {
	case l.source.URL != "":
		l.wg.Add(1)
		go l.refreshLoop()
	case l.source.Path != "":
		return l.Watch()
	}
	return nil
}

func (l *Loader) refreshLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.refreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := l.Load(); err != nil {
				log.Printf("[suffix_list] Failed to refresh: %v", err)
			}
		case <-l.stopChan:
			return
		}
	}
}

// Watch reloads the path source whenever the file changes. The directory
// is watched rather than the file so that replace-by-rename is noticed.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	path, err := filepath.Abs(l.source.Path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	l.watcher = watcher

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

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
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					if _, err := l.Load(); err != nil {
						log.Printf("[suffix_list] Failed to reload %s: %v", path, err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[suffix_list] Watcher error: %v", err)
			case <-l.stopChan:
				return
			}
		}
	}()

	log.Printf("[suffix_list] Watching %s for changes", path)
	return nil
}

// Stop ends background refreshing. Loads already under way, including a
// pending reload of a watched file, publish nothing once Stop returns.
func (l *Loader) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.stopOnce.Do(func() {
		close(l.stopChan)
		if l.watcher != nil {
			l.watcher.Close()
		}
	})
	l.wg.Wait()
}


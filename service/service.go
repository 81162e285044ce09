// Package service runs the long-lived classification service: it wires the
// configuration, cache, rule loaders, log sinks, HTTP server and realtime
// client together and applies configuration reloads.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"hostclass/cache"
	"hostclass/classifier"
	"hostclass/config"
	"hostclass/ipinfo"
	"hostclass/iplist"
	"hostclass/logger"
	"hostclass/middleware"
	"hostclass/pusher"
	"hostclass/server"
	"hostclass/suffixlist"
)

// DefaultCacheDir is used when neither flags nor config name one.
const DefaultCacheDir = "/var/cache/hostclass"

type Options struct {
	ConfigPath string
	CacheDir   string
	Listen     string
	UserAgent  string
	Version    string
	Verbose    bool
}

// listsRef lets the classifier follow IP list managers replaced on reload.
type listsRef struct {
	current atomic.Pointer[iplist.Manager]
}

func (r *listsRef) Match(addr netip.Addr) []string {
	return r.current.Load().Match(addr)
}

type Service struct {
	opts      Options
	configMgr *config.Manager
	cache     *cache.Cache
	logs      *logger.Manager

	holder *suffixlist.Holder
	lists  *listsRef
	asn    *ipinfo.Database

	classifier *classifier.Classifier
	clientIP   *middleware.ClientIPMiddleware
	server     *server.Server
	realtime   *pusher.Client

	mu           sync.Mutex
	loader       *suffixlist.Loader
	suffixSource suffixlist.Source
	listsConfig  map[string]iplist.ListConfig
	asnSource    ipinfo.Source

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New loads the configuration and prepares every component. Nothing
// listens or refreshes until Start.
func New(opts Options) (*Service, error) {
	configMgr, err := config.NewManager(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", opts.ConfigPath, err)
	}
	cfg := configMgr.GetConfig()

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	c, err := cache.NewCache(cacheDir, opts.UserAgent)
	if err != nil {
		return nil, err
	}
	c.SetVerbose(opts.Verbose)

	s := &Service{
		opts:      opts,
		configMgr: configMgr,
		cache:     c,
		logs:      logger.NewManager(opts.UserAgent),
		holder:    suffixlist.NewHolder(suffixlist.Embedded()),
		lists:     &listsRef{},
		asn:       &ipinfo.Database{},
		stopChan:  make(chan struct{}),
	}

	if err := s.logs.UpdateSinks(cfg.LoggingSinks()); err != nil {
		log.Printf("[service] %v", err)
	}

	s.suffixSource = cfg.SuffixList.Source()
	s.loader = suffixlist.NewLoader(s.suffixSource, c, s.holder, opts.Verbose)
	if _, err := s.loader.Load(); err != nil {
		log.Printf("[service] Suffix list unavailable, serving the embedded list: %v", err)
	}

	s.listsConfig = cfg.IPLists
	s.lists.current.Store(iplist.New(cfg.IPLists, c, opts.Verbose))

	s.asnSource = asnSource(cfg)
	if cfg.IPDatabase != nil {
		s.reloadDatabase()
	}

	s.classifier = classifier.New(s.holder,
		classifier.WithIPLists(s.lists),
		classifier.WithIPDatabase(s.asn),
	)

	listen := opts.Listen
	if listen == "" {
		listen = cfg.Listen()
	}
	s.clientIP = middleware.NewClientIPMiddleware(s.lists, cfg.TrustedProxyLists(), cfg.AllowLists())
	chain := middleware.NewChain(
		middleware.NewRequestIDMiddleware(),
		s.clientIP,
		middleware.NewLoggingMiddleware(s.logs),
	)
	s.server = server.NewServer(listen, s.classifier, chain, opts.UserAgent)

	s.realtime = pusher.NewClient(cfg.Realtime, opts.UserAgent, opts.Version, opts.Verbose)
	if s.realtime != nil {
		s.realtime.HandleRefreshEvents(s, s)
	}

	configMgr.OnChange(s.onConfigChange)

	return s, nil
}

func asnSource(cfg *config.Config) ipinfo.Source {
	if cfg.IPDatabase == nil {
		return ipinfo.Source{}
	}
	return ipinfo.Source{
		URL:             cfg.IPDatabase.URL,
		Path:            cfg.IPDatabase.Path,
		RefreshInterval: cfg.IPDatabase.RefreshInterval(),
	}
}

// Classifier returns the classifier served by the HTTP API.
func (s *Service) Classifier() *classifier.Classifier {
	return s.classifier
}

// Addr returns the address the API listens on.
func (s *Service) Addr() string {
	return s.server.Addr()
}

// Start binds the API, starts background refreshes and returns. Errors
// from the running server are delivered on the returned channel.
func (s *Service) Start() (<-chan error, error) {
	if err := s.server.Listen(); err != nil {
		return nil, err
	}

	if err := s.configMgr.StartWatcher(); err != nil {
		log.Printf("[service] Config hot reload disabled: %v", err)
	}

	s.mu.Lock()
	if err := s.loader.Start(); err != nil {
		log.Printf("[service] Suffix list refresh disabled: %v", err)
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.databaseRefreshLoop()

	if s.realtime != nil {
		s.realtime.Start()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.server.Serve()
	}()

	return errChan, nil
}

// Shutdown stops the server and every background task.
func (s *Service) Shutdown() error {
	log.Println("[service] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)

	s.stopOnce.Do(func() { close(s.stopChan) })
	s.configMgr.Stop()

	if s.realtime != nil {
		s.realtime.Disconnect()
	}

	s.mu.Lock()
	s.loader.Stop()
	s.mu.Unlock()

	s.lists.current.Load().Stop()
	s.wg.Wait()
	s.asn.Close()

	err := s.logs.Close()
	log.Println("[service] Shutdown complete")
	return err
}

// ForceLoad refetches the suffix list. It serves realtime refresh events.
func (s *Service) ForceLoad() (bool, error) {
	s.mu.Lock()
	loader := s.loader
	s.mu.Unlock()
	return loader.ForceLoad()
}

// RefreshListsByBaseID refetches matching IP lists. It serves realtime
// refresh events.
func (s *Service) RefreshListsByBaseID(baseID string) error {
	return s.lists.current.Load().RefreshListsByBaseID(baseID)
}

func (s *Service) onConfigChange(cfg *config.Config) {
	if err := s.logs.UpdateSinks(cfg.LoggingSinks()); err != nil {
		log.Printf("[service] %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if source := cfg.SuffixList.Source(); source != s.suffixSource {
		log.Printf("[service] Suffix list source changed, reloading")
		s.loader.Stop()
		s.suffixSource = source
		s.loader = suffixlist.NewLoader(source, s.cache, s.holder, s.opts.Verbose)
		if _, err := s.loader.Load(); err != nil {
			log.Printf("[service] Failed to load new suffix list, keeping the current rules: %v", err)
		}
		if err := s.loader.Start(); err != nil {
			log.Printf("[service] Suffix list refresh disabled: %v", err)
		}
	}

	if !reflect.DeepEqual(cfg.IPLists, s.listsConfig) {
		log.Printf("[service] IP lists changed, reloading")
		s.listsConfig = cfg.IPLists
		old := s.lists.current.Swap(iplist.New(cfg.IPLists, s.cache, s.opts.Verbose))
		old.Stop()
	}

	s.clientIP.SetLists(cfg.TrustedProxyLists(), cfg.AllowLists())

	if source := asnSource(cfg); source != s.asnSource {
		s.asnSource = source
		go s.reloadDatabase()
	}

	if s.realtime != nil {
		s.realtime.UpdateConfig(cfg.Realtime)
	}
}

func (s *Service) reloadDatabase() {
	s.mu.Lock()
	source := s.asnSource
	s.mu.Unlock()

	if source.URL == "" && source.Path == "" {
		return
	}

	path, err := ipinfo.Resolve(source, s.cache)
	if err != nil {
		if !errors.Is(err, ipinfo.ErrNoDatabase) {
			log.Printf("[service] IP database not available: %v", err)
		}
		return
	}
	if err := s.asn.Reload(path); err != nil {
		log.Printf("[service] Failed to reload IP database: %v", err)
	}
}

func (s *Service) databaseRefreshLoop() {
	defer s.wg.Done()

	s.mu.Lock()
	interval := s.asnSource.RefreshInterval
	s.mu.Unlock()
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reloadDatabase()

			s.mu.Lock()
			newInterval := s.asnSource.RefreshInterval
			s.mu.Unlock()
			if newInterval > 0 && newInterval != interval {
				log.Printf("[service] IP database refresh interval changed from %v to %v", interval, newInterval)
				ticker.Reset(newInterval)
				interval = newInterval
			}
		case <-s.stopChan:
			return
		}
	}
}

package cmd

import (
	"errors"
	"fmt"
	"log"

	"hostclass/cache"
	"hostclass/classifier"
	"hostclass/config"
	"hostclass/ipinfo"
	"hostclass/iplist"
	"hostclass/service"
	"hostclass/suffixlist"
)

// env holds what the one-shot commands need. It is built from the config
// file when one exists and from defaults otherwise.
type env struct {
	cfg    *config.Config
	cache  *cache.Cache
	holder *suffixlist.Holder
	loader *suffixlist.Loader
	lists  *iplist.Manager
	asn    *ipinfo.Database
}

func loadConfig() (*config.Config, error) {
	configMgr, err := config.LoadOrDefault(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configFile, err)
	}
	return configMgr.GetConfig(), nil
}

func resolveCacheDir(cfg *config.Config) string {
	switch {
	case cacheDir != "":
		return cacheDir
	case cfg != nil && cfg.CacheDir != "":
		return cfg.CacheDir
	default:
		return service.DefaultCacheDir
	}
}

func newCache(cfg *config.Config) (*cache.Cache, error) {
	c, err := cache.NewCache(resolveCacheDir(cfg), GetUserAgent())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	c.SetVerbose(verbose)
	return c, nil
}

// openEnv loads the configured suffix list. With withIP the IP lists and
// the ASN database are loaded as well.
func openEnv(withIP bool) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	e := &env{
		cfg:    cfg,
		holder: suffixlist.NewHolder(suffixlist.Embedded()),
	}

	source := cfg.SuffixList.Source()
	needsCache := source.URL != "" ||
		(withIP && (len(cfg.IPLists) > 0 || (cfg.IPDatabase != nil && cfg.IPDatabase.URL != "")))
	if needsCache {
		if e.cache, err = newCache(cfg); err != nil {
			return nil, err
		}
	}

	e.loader = suffixlist.NewLoader(source, e.cache, e.holder, verbose)
	if _, err := e.loader.Load(); err != nil {
		return nil, err
	}

	if !withIP {
		return e, nil
	}

	if len(cfg.IPLists) > 0 {
		e.lists = iplist.New(cfg.IPLists, e.cache, verbose)
	}

	if cfg.IPDatabase != nil {
		src := ipinfo.Source{
			URL:             cfg.IPDatabase.URL,
			Path:            cfg.IPDatabase.Path,
			RefreshInterval: cfg.IPDatabase.RefreshInterval(),
		}
		path, err := ipinfo.Resolve(src, e.cache)
		switch {
		case err == nil:
			if e.asn, err = ipinfo.Open(path); err != nil {
				log.Printf("[WARN] %v", err)
			}
		case !errors.Is(err, ipinfo.ErrNoDatabase):
			log.Printf("[WARN] IP database not available: %v", err)
		}
	}

	return e, nil
}

func (e *env) classifier() *classifier.Classifier {
	var opts []classifier.Option
	if e.lists != nil {
		opts = append(opts, classifier.WithIPLists(e.lists))
	}
	if e.asn != nil {
		opts = append(opts, classifier.WithIPDatabase(e.asn))
	}
	return classifier.New(e.holder, opts...)
}

func (e *env) Close() {
	if e.lists != nil {
		e.lists.Stop()
	}
	e.asn.Close()
}

// Package ipinfo looks up ASN and country data for IP-literal hosts in a
// MaxMind DB file such as ipinfo_lite.mmdb.
package ipinfo

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"hostclass/cache"

	"github.com/oschwald/maxminddb-golang"
)

// DefaultFile is tried in the working directory when nothing is configured.
const DefaultFile = "ipinfo_lite.mmdb"

// ErrNoDatabase is returned when no database is configured or found.
var ErrNoDatabase = errors.New("no IP database configured or found")

// ASNInfo holds ASN information from the MMDB database
type ASNInfo struct {
	Network       string `maxminddb:"network" json:"network,omitempty"`
	Country       string `maxminddb:"country" json:"country,omitempty"`
	CountryCode   string `maxminddb:"country_code" json:"country_code,omitempty"`
	Continent     string `maxminddb:"continent" json:"continent,omitempty"`
	ContinentCode string `maxminddb:"continent_code" json:"continent_code,omitempty"`
	ASN           string `maxminddb:"asn" json:"asn,omitempty"`
	ASName        string `maxminddb:"as_name" json:"as_name,omitempty"`
	ASDomain      string `maxminddb:"as_domain" json:"as_domain,omitempty"`
}

// Source says where the database comes from. URL downloads go through the
// cache; Path is used directly and as fallback.
type Source struct {
	URL             string
	Path            string
	RefreshInterval time.Duration
}

// Database is a reloadable mmdb reader. A nil *Database answers every
// lookup with nil.
type Database struct {
	mu     sync.RWMutex
	reader *maxminddb.Reader
	path   string
}

// Open opens the mmdb file at path.
func Open(path string) (*Database, error) {
	d := &Database{}
	if err := d.Reload(path); err != nil {
		return nil, err
	}
	return d, nil
}

// Resolve returns the local path of the database described by src,
// downloading it through c when a URL is set.
func Resolve(src Source, c *cache.Cache) (string, error) {
	if src.URL == "" {
		return localPath(src.Path)
	}

	ttl := src.RefreshInterval
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	cachedPath, err := c.FetchFile(src.URL, ttl)
	if err != nil {
		if path, localErr := localPath(src.Path); localErr == nil {
			log.Printf("[ip_database] Failed to download IP database, using local file: %v", err)
			return path, nil
		}
		return "", fmt.Errorf("failed to download IP database: %w", err)
	}
	return cachedPath, nil
}

func localPath(path string) (string, error) {
	if path == "" {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		return "", ErrNoDatabase
	}
	return path, nil
}

// Reload swaps in the database at path. The same path is not reopened.
func (d *Database) Reload(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader != nil && d.path == path {
		return nil
	}

	reader, err := maxminddb.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open MMDB file: %w", err)
	}

	if d.reader != nil {
		d.reader.Close()
	}
	d.reader = reader
	d.path = path

	log.Printf("[ip_database] Loaded ASN database from %s", path)
	return nil
}

// Path returns the file currently opened.
func (d *Database) Path() string {
	if d == nil {
		return ""
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.path
}

// Lookup returns the record for addr, or nil when the address is not in
// the database or has no ASN.
func (d *Database) Lookup(addr netip.Addr) *ASNInfo {
	if d == nil || !addr.IsValid() {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.reader == nil {
		return nil
	}

	var asn ASNInfo
	if err := d.reader.Lookup(net.IP(addr.Unmap().AsSlice()), &asn); err != nil {
		return nil
	}
	if asn.ASN == "" {
		return nil
	}

	return &asn
}

// Close closes the database
func (d *Database) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader != nil {
		d.reader.Close()
		d.reader = nil
	}
}

// Package domainname parses host names into DomainName values carrying the
// normalized host, its TLD and its registrable domain as derived from a
// public suffix rule set.
package domainname

import (
	"fmt"
	"net/netip"
	"strings"

	"hostclass/normalization"
	"hostclass/suffixlist"
)

// DomainName is a parsed host name or IP literal. Values are immutable
// and safe to share.
type DomainName struct {
	hostname     string
	uriHost      string
	addr         netip.Addr
	tld          string
	domain       string
	hasDomain    bool
	canonicalTLD bool
}

// Hostname returns the normalized ASCII host name, or the canonical text
// of an IP address.
func (d *DomainName) Hostname() string { return d.hostname }

// URIHost returns the host as used in a URI; IPv6 addresses are bracketed.
func (d *DomainName) URIHost() string { return d.uriHost }

// Addr returns the address of an IP literal.
func (d *DomainName) Addr() (netip.Addr, bool) { return d.addr, d.addr.IsValid() }

// IsIPAddr reports whether the host is an IPv4 or IPv6 literal.
func (d *DomainName) IsIPAddr() bool { return d.addr.IsValid() }

// TLD returns the last label of a DNS name, or "" for IP literals.
func (d *DomainName) TLD() string { return d.tld }

// Domain returns the registrable domain. ok is false for IP literals and
// for names that are themselves a public suffix.
func (d *DomainName) Domain() (domain string, ok bool) { return d.domain, d.hasDomain }

// IsCanonicalTLD reports whether the rule set knows the TLD.
func (d *DomainName) IsCanonicalTLD() bool { return d.canonicalTLD }

// IsCanonical reports whether the TLD is known and a registrable domain
// was found.
func (d *DomainName) IsCanonical() bool { return d.canonicalTLD && d.hasDomain }

// Labels returns the labels of a DNS name from left to right. IP literals
// have no labels.
func (d *DomainName) Labels() []Label {
	if d.IsIPAddr() {
		return nil
	}
	parts := strings.Split(d.hostname, ".")
	labels := make([]Label, len(parts))
	for i, p := range parts {
		labels[i] = Label(p)
	}
	return labels
}

func (d *DomainName) String() string { return d.hostname }

// GoString renders the value for debugging, e.g.
// #<DomainName:www.example.com domain=example.com tld=com>.
func (d *DomainName) GoString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#<DomainName:%s", d.hostname)
	if d.IsIPAddr() {
		b.WriteString(" (ipaddr)")
	} else {
		if d.hasDomain {
			b.WriteString(" domain=" + d.domain)
		}
		if d.tld != "" {
			b.WriteString(" tld=" + d.tld)
		}
	}
	b.WriteByte('>')
	return b.String()
}

// Parser builds DomainName values against a rule set. It holds no mutable
// state and may be used from many goroutines; hand it a
// suffixlist.Holder to pick up rule updates.
type Parser struct {
	rules      suffixlist.Rules
	normalizer *normalization.Normalizer
}

// Option configures a Parser.
type Option func(*Parser)

// WithUnicode replaces the Unicode implementation used for NFC.
func WithUnicode(u normalization.Unicode) Option {
	return func(p *Parser) {
		p.normalizer = normalization.NewNormalizer(u)
	}
}

// NewParser creates a parser resolving against rules.
func NewParser(rules suffixlist.Rules, opts ...Option) *Parser {
	p := &Parser{
		rules:      rules,
		normalizer: normalization.NewNormalizer(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultParser = NewParser(suffixlist.Embedded())

// Parse parses host against the compiled-in public suffix list.
func Parse(host string) (*DomainName, error) {
	return defaultParser.Parse(host)
}

// Parse normalizes host and resolves its TLD and registrable domain.
func (p *Parser) Parse(host string) (*DomainName, error) {
	h, err := p.normalizer.Normalize(host)
	if err != nil {
		return nil, err
	}

	d := &DomainName{
		hostname: h.Hostname,
		uriHost:  h.URIHost,
		addr:     h.Addr,
	}
	if h.IsIP() {
		return d, nil
	}

	rules := p.rules
	if s, ok := rules.(suffixlist.Snapshotter); ok {
		rules = s.Snapshot()
	}
	d.resolve(rules)
	return d, nil
}

// resolve walks the suffixes of the host name from longest to shortest
// and stops at the first one carrying a rule.
func (d *DomainName) resolve(rules suffixlist.Rules) {
	name := d.hostname
	lastDot := strings.LastIndexByte(name, '.')
	d.tld = name[lastDot+1:]

	if _, ok := rules.Lookup(d.tld); !ok {
		// unknown TLD: registrable domain is the last two labels
		d.hasDomain = true
		d.domain = name
		if lastDot >= 0 {
			if i := strings.LastIndexByte(name[:lastDot], '.'); i >= 0 {
				d.domain = name[i+1:]
			}
		}
		return
	}
	d.canonicalTLD = true

	// start offsets of the candidates one and two labels longer
	prev, prev2 := -1, -1
	start := 0
	for {
		if kind, ok := rules.Lookup(name[start:]); ok {
			switch kind {
			case suffixlist.Exact:
				d.setDomain(prev)
				return
			case suffixlist.Wildcard:
				d.setDomain(prev2)
				return
			case suffixlist.Exception:
				d.setDomain(start)
				return
			}
		}

		dot := strings.IndexByte(name[start:], '.')
		if dot < 0 {
			return
		}
		prev2, prev = prev, start
		start += dot + 1
	}
}

func (d *DomainName) setDomain(offset int) {
	if offset < 0 {
		return
	}
	d.domain = d.hostname[offset:]
	d.hasDomain = true
}

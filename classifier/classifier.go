// Package classifier combines host parsing with the configured IP lists
// and ASN database into JSON-ready results.
package classifier

import (
	"net/netip"

	"hostclass/domainname"
	"hostclass/ipinfo"
	"hostclass/normalization"
	"hostclass/suffixlist"
)

// ListMatcher reports the names of the IP lists containing an address.
// *iplist.Manager implements it.
type ListMatcher interface {
	Match(addr netip.Addr) []string
}

// ASNLookup finds ASN data for an address. *ipinfo.Database implements it.
type ASNLookup interface {
	Lookup(addr netip.Addr) *ipinfo.ASNInfo
}

// LabelInfo describes one label of a DNS name.
type LabelInfo struct {
	Label string `json:"label"`
	ASCII bool   `json:"ascii"`
	LDH   bool   `json:"ldh"`
	RLDH  bool   `json:"r_ldh"`
	NRLDH bool   `json:"nr_ldh"`
	XN    bool   `json:"xn"`
	A     bool   `json:"a_label"`
	NFC   bool   `json:"nfc"`
	U     bool   `json:"u_label"`
}

// DescribeLabel evaluates every predicate of l.
func DescribeLabel(l domainname.Label) LabelInfo {
	return LabelInfo{
		Label: string(l),
		ASCII: l.IsASCII(),
		LDH:   l.IsLDH(),
		RLDH:  l.IsRLDH(),
		NRLDH: l.IsNRLDH(),
		XN:    l.IsXN(),
		A:     l.IsA(),
		NFC:   l.IsNFC(),
		U:     l.IsU(),
	}
}

// Result is the classification of one host.
type Result struct {
	Input        string          `json:"input"`
	Hostname     string          `json:"hostname"`
	URIHost      string          `json:"uri_host"`
	IPAddress    bool            `json:"ip_address"`
	TLD          string          `json:"tld,omitempty"`
	Domain       string          `json:"domain,omitempty"`
	CanonicalTLD bool            `json:"canonical_tld"`
	Canonical    bool            `json:"canonical"`
	Labels       []LabelInfo     `json:"labels,omitempty"`
	IPLists      []string        `json:"ip_lists,omitempty"`
	ASN          *ipinfo.ASNInfo `json:"asn,omitempty"`
}

// Classifier is safe for concurrent use. Rule updates published to the
// holder are visible to the next call.
type Classifier struct {
	parser *domainname.Parser
	rules  suffixlist.Rules
	lists  ListMatcher
	asn    ASNLookup
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithIPLists reports list membership for IP-literal hosts.
func WithIPLists(m ListMatcher) Option {
	return func(c *Classifier) { c.lists = m }
}

// WithIPDatabase adds ASN data for IP-literal hosts.
func WithIPDatabase(d ASNLookup) Option {
	return func(c *Classifier) { c.asn = d }
}

// New creates a classifier resolving against rules.
func New(rules suffixlist.Rules, opts ...Option) *Classifier {
	c := &Classifier{
		parser: domainname.NewParser(rules),
		rules:  rules,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parser returns the underlying parser.
func (c *Classifier) Parser() *domainname.Parser {
	return c.parser
}

// Rule looks up the rule stored for suffix.
func (c *Classifier) Rule(suffix string) (suffixlist.Kind, bool) {
	return c.rules.Lookup(suffix)
}

// Classify strips an optional port from raw and classifies the host.
func (c *Classifier) Classify(raw string) (*Result, error) {
	d, err := c.parser.Parse(normalization.SplitHostPort(raw))
	if err != nil {
		return nil, err
	}

	r := &Result{
		Input:        raw,
		Hostname:     d.Hostname(),
		URIHost:      d.URIHost(),
		IPAddress:    d.IsIPAddr(),
		TLD:          d.TLD(),
		CanonicalTLD: d.IsCanonicalTLD(),
		Canonical:    d.IsCanonical(),
	}
	if domain, ok := d.Domain(); ok {
		r.Domain = domain
	}

	if addr, ok := d.Addr(); ok {
		if c.lists != nil {
			r.IPLists = c.lists.Match(addr)
		}
		if c.asn != nil {
			r.ASN = c.asn.Lookup(addr)
		}
		return r, nil
	}

	for _, l := range d.Labels() {
		r.Labels = append(r.Labels, DescribeLabel(l))
	}
	return r, nil
}

// CookieDomain reports whether host may set a cookie with Domain=attr.
func (c *Classifier) CookieDomain(host, attr string) (bool, error) {
	return c.parser.CookieDomain(normalization.SplitHostPort(host), attr)
}

// Compare orders a and b in the domain hierarchy.
func (c *Classifier) Compare(a, b string) (domainname.Ordering, error) {
	return c.parser.Compare(a, b)
}

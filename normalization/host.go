package normalization

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"hostclass/punycode"
)

// MaxHostnameLength is the longest normalized DNS name accepted.
const MaxHostnameLength = 253

// ErrInvalidFormat is returned for host strings that cannot be a host name
// or IP literal, such as names starting with a dot.
var ErrInvalidFormat = errors.New("invalid host format")

var (
	ipv4Pattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+\.[0-9]+$`)
	ipv6Pattern = regexp.MustCompile(`^[0-9A-Fa-f:]*:[0-9A-Fa-f:]*:[0-9A-Fa-f:]*$`)
)

// Host is a normalized host string.
type Host struct {
	// Hostname is the lowercase ASCII DNS name or the canonical text of
	// the IP address (IPv6 without brackets).
	Hostname string

	// URIHost is Hostname as it appears in a URI authority; IPv6
	// addresses are enclosed in brackets.
	URIHost string

	// Addr is valid only for IP literals.
	Addr netip.Addr
}

// IsIP reports whether the host is an IP literal.
func (h Host) IsIP() bool {
	return h.Addr.IsValid()
}

// Normalizer turns raw host strings into Host values.
type Normalizer struct {
	unicode Unicode
}

// NewNormalizer creates a normalizer using u for NFC normalization.
// A nil u selects Default.
func NewNormalizer(u Unicode) *Normalizer {
	if u == nil {
		u = Default
	}
	return &Normalizer{unicode: u}
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize normalizes raw with the default Unicode implementation.
func Normalize(raw string) (Host, error) {
	return defaultNormalizer.Normalize(raw)
}

// NormalizeDomain applies the DNS-name branch of Normalize to name, without
// IP literal detection.
func NormalizeDomain(name string) (string, error) {
	return defaultNormalizer.NormalizeDomain(name)
}

// Normalize detects IPv4 and IPv6 literals and otherwise normalizes raw as
// a DNS name.
func (n *Normalizer) Normalize(raw string) (Host, error) {
	if raw == "" {
		return Host{}, fmt.Errorf("%w: empty host", ErrInvalidFormat)
	}
	if raw[0] == '.' {
		return Host{}, fmt.Errorf("%w: %q starts with a dot", ErrInvalidFormat, raw)
	}

	if ipv4Pattern.MatchString(raw) {
		addr, err := netip.ParseAddr(raw)
		if err != nil || !addr.Is4() {
			return Host{}, fmt.Errorf("%w: invalid IPv4 address %q", ErrInvalidFormat, raw)
		}
		s := addr.String()
		return Host{Hostname: s, URIHost: s, Addr: addr}, nil
	}

	if literal, ok := ipv6Literal(raw); ok {
		addr, err := netip.ParseAddr(literal)
		if err != nil || !addr.Is6() {
			return Host{}, fmt.Errorf("%w: invalid IPv6 address %q", ErrInvalidFormat, raw)
		}
		s := addr.String()
		return Host{Hostname: s, URIHost: "[" + s + "]", Addr: addr}, nil
	}

	hostname, err := n.NormalizeDomain(raw)
	if err != nil {
		return Host{}, err
	}

	return Host{Hostname: hostname, URIHost: hostname}, nil
}

// NormalizeDomain strips one trailing dot, applies NFC, Punycode-encodes
// non-ASCII labels and lowercases the result.
func (n *Normalizer) NormalizeDomain(name string) (string, error) {
	if strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q starts with a dot", ErrInvalidFormat, name)
	}

	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidFormat)
	}
	if strings.Contains(name, "..") || strings.HasSuffix(name, ".") {
		return "", fmt.Errorf("%w: %q has an empty label", ErrInvalidFormat, name)
	}

	encoded, err := punycode.EncodeHostname(n.unicode.NFC(name))
	if err != nil {
		return "", fmt.Errorf("encode %q: %w", name, err)
	}

	hostname := strings.ToLower(encoded)
	if len(hostname) > MaxHostnameLength {
		return "", fmt.Errorf("%w: %d octets exceeds %d", ErrInvalidFormat, len(hostname), MaxHostnameLength)
	}

	return hostname, nil
}

// ipv6Literal returns the address part of an IPv6 literal, optionally
// enclosed in brackets.
func ipv6Literal(s string) (string, bool) {
	if len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']' {
		s = s[1 : len(s)-1]
	}
	return s, ipv6Pattern.MatchString(s)
}

package normalization

import (
	"net"
	"strings"
)

// SplitHostPort strips an optional port and IPv6 brackets from hostport.
// Strings that are not host:port pairs are returned unchanged, so a bare
// IPv6 literal keeps all of its colons.
func SplitHostPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)

	// Strip port if present (also handles [IPv6]:port)
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}

	// Strip IPv6 brackets (e.g. [::1] without port)
	if len(hostport) > 2 && hostport[0] == '[' && hostport[len(hostport)-1] == ']' {
		return hostport[1 : len(hostport)-1]
	}

	return hostport
}

package middleware

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
)

const ContextKeyClientIP contextKey = "clientIP"

// IPMatcher reports the names of the IP lists containing an address.
type IPMatcher interface {
	Match(addr netip.Addr) []string
}

// ClientIPMiddleware resolves the client address of a request. Peers in
// one of the trusted proxy lists may name the client in X-Forwarded-For
// or X-Real-IP. With allow lists set, clients outside all of them are
// rejected with 403.
type ClientIPMiddleware struct {
	matcher IPMatcher

	mu      sync.RWMutex
	trusted map[string]bool
	allowed map[string]bool
}

func NewClientIPMiddleware(matcher IPMatcher, trustedLists, allowLists []string) *ClientIPMiddleware {
	m := &ClientIPMiddleware{matcher: matcher}
	m.SetLists(trustedLists, allowLists)
	return m
}

// SetLists replaces the trusted proxy and allow list names.
func (m *ClientIPMiddleware) SetLists(trustedLists, allowLists []string) {
	trusted := toSet(trustedLists)
	allowed := toSet(allowLists)

	m.mu.Lock()
	m.trusted = trusted
	m.allowed = allowed
	m.mu.Unlock()
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func (m *ClientIPMiddleware) Handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	m.mu.RLock()
	trusted, allowed := m.trusted, m.allowed
	m.mu.RUnlock()

	clientIP := m.clientIP(r, trusted)

	if allowed != nil && !m.inLists(clientIP, allowed) {
		log.Printf("[middleware:client_ip] blocked %s requesting %s", clientIP, r.URL.Path)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	ctx := context.WithValue(r.Context(), ContextKeyClientIP, clientIP)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (m *ClientIPMiddleware) Stop() {}

func (m *ClientIPMiddleware) inLists(ip string, names map[string]bool) bool {
	if m.matcher == nil {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, name := range m.matcher.Match(addr) {
		if names[name] {
			return true
		}
	}
	return false
}

func (m *ClientIPMiddleware) clientIP(r *http.Request, trusted map[string]bool) string {
	remoteIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteIP = r.RemoteAddr
	}

	if trusted == nil || !m.inLists(remoteIP, trusted) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")

		// The rightmost address not belonging to a trusted proxy is the client
		for i := len(ips) - 1; i >= 0; i-- {
			ip := strings.TrimSpace(ips[i])
			if !m.inLists(ip, trusted) {
				return ip
			}
		}
		return strings.TrimSpace(ips[0])
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return remoteIP
}

// GetClientIP returns the client address resolved for r, falling back to
// the peer address outside a ClientIPMiddleware.
func GetClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

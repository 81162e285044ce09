// Package server exposes the classifier as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"hostclass/classifier"
	"hostclass/middleware"
	"hostclass/normalization"
	"hostclass/punycode"
)

type Server struct {
	addr         string
	classifier   *classifier.Classifier
	chain        *middleware.Chain
	serverHeader string
	listener     net.Listener

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a server listening on addr. chain may be nil.
func NewServer(addr string, c *classifier.Classifier, chain *middleware.Chain, serverHeader string) *Server {
	if chain == nil {
		chain = middleware.NewChain()
	}
	return &Server{
		addr:         addr,
		classifier:   c,
		chain:        chain,
		serverHeader: serverHeader,
	}
}

// Handler returns the API routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/classify", s.handleClassify)
	mux.HandleFunc("GET /v1/cookie", s.handleCookie)
	mux.HandleFunc("GET /v1/compare", s.handleCompare)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.chain.Then(mux)
}

// Listen binds the listening socket so that callers learn about address
// errors before Serve runs in the background.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("[%s] failed to listen: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve blocks until the server is shut down.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	log.Printf("[server] Listening on %s", s.Addr())
	if err := httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("[%s] server failed: %w", s.Addr(), err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	httpServer := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if httpServer == nil {
		return
	}

	log.Printf("[server] Shutting down %s", s.Addr())
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[server] Error shutting down server: %v", err)
		return
	}
	s.chain.Stop()
	log.Printf("[server] Server stopped gracefully")
}

type errorResponse struct {
	Error string `json:"error"`
}

type cookieResponse struct {
	Host   string `json:"host"`
	Domain string `json:"domain"`
	Legal  bool   `json:"legal"`
}

type compareResponse struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Ordering string `json:"ordering"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	host, ok := s.requireParam(w, r, "host")
	if !ok {
		return
	}

	result, err := s.classifier.Classify(host)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	middleware.SetLogField(r, "result", map[string]interface{}{
		"hostname":   result.Hostname,
		"tld":        result.TLD,
		"domain":     result.Domain,
		"ip_address": result.IPAddress,
		"canonical":  result.Canonical,
	})
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCookie(w http.ResponseWriter, r *http.Request) {
	host, ok := s.requireParam(w, r, "host")
	if !ok {
		return
	}
	domain, ok := s.requireParam(w, r, "domain")
	if !ok {
		return
	}

	legal, err := s.classifier.CookieDomain(host, domain)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	middleware.SetLogField(r, "cookie", map[string]interface{}{"legal": legal})
	s.writeJSON(w, http.StatusOK, cookieResponse{Host: host, Domain: domain, Legal: legal})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	a, ok := s.requireParam(w, r, "a")
	if !ok {
		return
	}
	b, ok := s.requireParam(w, r, "b")
	if !ok {
		return
	}

	ordering, err := s.classifier.Compare(a, b)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, compareResponse{A: a, B: b, Ordering: ordering.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("missing query parameter %q", name)})
		return "", false
	}
	return value, true
}

// statusFor maps classification errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, punycode.ErrOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, normalization.ErrInvalidFormat), errors.Is(err, punycode.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[server] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	middleware.SetLogField(r, "error", err.Error())
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	if s.serverHeader != "" {
		w.Header().Set("Server", s.serverHeader)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] Failed to encode response: %v", err)
	}
}

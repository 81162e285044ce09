// Package middleware provides the HTTP middleware chain in front of the
// classification API.
package middleware

import (
	"net/http"
)

// Middleware wraps the handling of one request. Stop releases resources
// when the server shuts down.
type Middleware interface {
	Handle(w http.ResponseWriter, r *http.Request, next http.Handler)
	Stop()
}

// Chain runs middlewares in the order they were added around a final
// handler.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from middlewares.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Add appends a middleware; it runs inside the ones added before it.
func (mc *Chain) Add(m Middleware) {
	mc.middlewares = append(mc.middlewares, m)
}

// Then returns a handler running the chain around final. A nil final
// handler responds with 404.
func (mc *Chain) Then(final http.Handler) http.Handler {
	handler := final
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	// Wrap backwards so the first middleware added is the outermost
	for i := len(mc.middlewares) - 1; i >= 0; i-- {
		middleware := mc.middlewares[i]
		next := handler
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			middleware.Handle(w, r, next)
		})
	}

	return handler
}

// Stop calls Stop on all middlewares in the chain
func (mc *Chain) Stop() {
	for _, m := range mc.middlewares {
		m.Stop()
	}
}

// ResponseWriterWrapper records the status code and body size written
// through it.
type ResponseWriterWrapper struct {
	http.ResponseWriter

	BodySize    int64
	StatusCode  int
	ContentType string
}

// NewResponseWriterWrapper wraps w with a default status of 200.
func NewResponseWriterWrapper(w http.ResponseWriter) *ResponseWriterWrapper {
	return &ResponseWriterWrapper{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (w *ResponseWriterWrapper) Write(data []byte) (int, error) {
	if w.ContentType == "" {
		w.ContentType = w.Header().Get("Content-Type")
	}

	n, err := w.ResponseWriter.Write(data)
	w.BodySize += int64(n)
	return n, err
}

func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	w.StatusCode = statusCode
	w.ContentType = w.Header().Get("Content-Type")
	w.ResponseWriter.WriteHeader(statusCode)
}

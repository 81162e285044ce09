package middleware

import (
	"net/http"
	"sync"
	"time"

	"hostclass/logger"
)

// logFields collects values handlers attach to the request log entry.
type logFields struct {
	mu     sync.Mutex
	values map[string]interface{}
}

// SetLogField attaches key to the log entry written for r. It is a no-op
// outside a RequestIDMiddleware.
func SetLogField(r *http.Request, key string, value interface{}) {
	fields, ok := r.Context().Value(ContextKeyLogFields).(*logFields)
	if !ok {
		return
	}
	fields.mu.Lock()
	defer fields.mu.Unlock()
	if fields.values == nil {
		fields.values = make(map[string]interface{})
	}
	fields.values[key] = value
}

// LoggingMiddleware writes one "request" entry per request to the log
// manager after the handler finished.
type LoggingMiddleware struct {
	manager *logger.Manager
}

func NewLoggingMiddleware(manager *logger.Manager) *LoggingMiddleware {
	return &LoggingMiddleware{manager: manager}
}

func (lm *LoggingMiddleware) Handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if !lm.manager.HasSinks() {
		next.ServeHTTP(w, r)
		return
	}

	wrapper := NewResponseWriterWrapper(w)
	next.ServeHTTP(wrapper, r)

	lm.manager.Write(buildLogEntry(r, wrapper))
}

func (lm *LoggingMiddleware) Stop() {}

func buildLogEntry(r *http.Request, wrapper *ResponseWriterWrapper) *logger.LogEntry {
	entry := logger.NewEntry("request")
	entry.Set("request", map[string]interface{}{
		"id":         GetRequestID(r),
		"method":     r.Method,
		"path":       r.URL.Path,
		"query":      r.URL.RawQuery,
		"user_agent": r.UserAgent(),
		"remote":     GetClientIP(r),
	})

	response := map[string]interface{}{
		"status":    wrapper.StatusCode,
		"body_size": wrapper.BodySize,
	}
	if start := GetStartTime(r); !start.IsZero() {
		response["time_ms"] = float64(time.Since(start).Microseconds()) / 1000
	}
	entry.Set("response", response)

	if fields, ok := r.Context().Value(ContextKeyLogFields).(*logFields); ok {
		fields.mu.Lock()
		for k, v := range fields.values {
			entry.Set(k, v)
		}
		fields.mu.Unlock()
	}

	return entry
}

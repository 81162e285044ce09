package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const (
	ContextKeyRequestID contextKey = "requestID"
	ContextKeyStartTime contextKey = "startTime"
	ContextKeyLogFields contextKey = "logFields"
)

// RequestIDHeader carries the request id on responses.
const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware stamps every request with a ULID and its start time.
// It should be added first so timings cover the whole chain.
type RequestIDMiddleware struct{}

func NewRequestIDMiddleware() *RequestIDMiddleware {
	return &RequestIDMiddleware{}
}

func (m *RequestIDMiddleware) Handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	id := ulid.Make().String()
	w.Header().Set(RequestIDHeader, id)

	ctx := context.WithValue(r.Context(), ContextKeyRequestID, id)
	ctx = context.WithValue(ctx, ContextKeyStartTime, time.Now())
	ctx = context.WithValue(ctx, ContextKeyLogFields, &logFields{})

	next.ServeHTTP(w, r.WithContext(ctx))
}

func (m *RequestIDMiddleware) Stop() {}

// GetRequestID returns the id assigned to r, or "".
func GetRequestID(r *http.Request) string {
	if id, ok := r.Context().Value(ContextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// GetStartTime returns when r entered the chain.
func GetStartTime(r *http.Request) time.Time {
	if startTime, ok := r.Context().Value(ContextKeyStartTime).(time.Time); ok {
		return startTime
	}
	return time.Time{}
}

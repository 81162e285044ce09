package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"hostclass/classifier"
	"hostclass/middleware"
	"hostclass/normalization"
	"hostclass/punycode"
	"hostclass/suffixlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	rules := suffixlist.NewTable(map[string]suffixlist.Kind{
		"com":      suffixlist.Exact,
		"jp":       suffixlist.Exact,
		"kyoto.jp": suffixlist.Wildcard,
	})
	chain := middleware.NewChain(middleware.NewRequestIDMiddleware())
	s := NewServer("127.0.0.1:0", classifier.New(rules), chain, "hostclass/test")

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string, params url.Values) (*http.Response, map[string]interface{}) {
	t.Helper()

	resp, err := http.Get(ts.URL + path + "?" + params.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts, "/v1/classify", url.Values{"host": {"www.Example.com:443"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "hostclass/test", resp.Header.Get("Server"))
	assert.Len(t, resp.Header.Get(middleware.RequestIDHeader), 26)

	assert.Equal(t, "www.example.com", body["hostname"])
	assert.Equal(t, "example.com", body["domain"])
	assert.Equal(t, "com", body["tld"])
	assert.Equal(t, true, body["canonical"])
	assert.Len(t, body["labels"], 3)
}

func TestClassifyIPAddress(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts, "/v1/classify", url.Values{"host": {"[::1]:8080"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "::1", body["hostname"])
	assert.Equal(t, "[::1]", body["uri_host"])
	assert.Equal(t, true, body["ip_address"])
	assert.NotContains(t, body, "domain")
}

func TestErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		params url.Values
		status int
	}{
		{"missing host", "/v1/classify", url.Values{}, http.StatusBadRequest},
		{"leading dot", "/v1/classify", url.Values{"host": {".example.com"}}, http.StatusBadRequest},
		{"overflow", "/v1/classify", url.Values{"host": {strings.Repeat("a", 4000) + "\U0010FFFF.com"}}, http.StatusUnprocessableEntity},
		{"missing cookie domain", "/v1/cookie", url.Values{"host": {"example.com"}}, http.StatusBadRequest},
		{"missing compare operand", "/v1/compare", url.Values{"a": {"example.com"}}, http.StatusBadRequest},
		{"invalid compare operand", "/v1/compare", url.Values{"a": {"example.com"}, "b": {"a..b"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, ts, tt.path, tt.params)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCookie(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		host   string
		domain string
		legal  bool
	}{
		{"www.example.com", "example.com", true},
		{"www.example.com", "www.example.com", true},
		{"example.com", "www.example.com", false},
		{"www.example.com", "com", false},
		{"a.b.kyoto.jp", "b.kyoto.jp", false},
	}

	for _, tt := range tests {
		t.Run(tt.host+"/"+tt.domain, func(t *testing.T) {
			resp, body := get(t, ts, "/v1/cookie", url.Values{"host": {tt.host}, "domain": {tt.domain}})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.legal, body["legal"])
			assert.Equal(t, tt.host, body["host"])
		})
	}
}

func TestCompare(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		a, b string
		want string
	}{
		{"www.example.com", "example.com", "less"},
		{"example.com", "www.example.com", "greater"},
		{"EXAMPLE.com", "example.com.", "equal"},
		{"example.com", "example.org", "incomparable"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.a, tt.b), func(t *testing.T) {
			resp, body := get(t, ts, "/v1/compare", url.Values{"a": {tt.a}, "b": {tt.b}})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.want, body["ordering"])
		})
	}
}

func TestHealthAndMethods(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	post, err := http.Post(ts.URL+"/v1/classify?host=example.com", "text/plain", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrap: %w", normalization.ErrInvalidFormat)))
	assert.Equal(t, http.StatusBadRequest, statusFor(punycode.ErrInvalidInput))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(fmt.Errorf("encode: %w", punycode.ErrOverflow)))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk on fire")))
}

func TestServeAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", classifier.New(suffixlist.Embedded()), nil, "")
	require.NoError(t, s.Listen())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Shutdown(ctx)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}

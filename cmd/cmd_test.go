package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hostclass/classifier"
	"hostclass/config"
	"hostclass/domainname"
	"hostclass/iplist"
	"hostclass/suffixlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useConfig points the global flags at a temporary config file.
func useConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	oldConfig, oldCache := configFile, cacheDir
	configFile, cacheDir = path, filepath.Join(dir, "cache")
	t.Cleanup(func() { configFile, cacheDir = oldConfig, oldCache })

	return dir
}

func TestHandleClassify(t *testing.T) {
	c := classifier.New(suffixlist.Embedded())

	var out bytes.Buffer
	failed := handleClassify(&out, c, []string{"www.Example.COM:443", ".invalid"}, false)
	assert.Equal(t, 1, failed)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var result classifier.Result
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &result))
	assert.Equal(t, "www.example.com", result.Hostname)
	assert.Equal(t, "example.com", result.Domain)
	assert.True(t, result.Canonical)

	var failure classifyError
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failure))
	assert.Equal(t, ".invalid", failure.Input)
	assert.NotEmpty(t, failure.Error)
}

func TestHandleClassifyPretty(t *testing.T) {
	var out bytes.Buffer
	failed := handleClassify(&out, classifier.New(suffixlist.Embedded()), []string{"192.0.2.1"}, true)
	assert.Zero(t, failed)
	assert.Contains(t, out.String(), "\n  \"ip_address\": true")
}

func TestHandleCookie(t *testing.T) {
	c := classifier.New(suffixlist.Embedded())

	tests := []struct {
		host, domain string
		legal        bool
	}{
		{"www.example.com", "example.com", true},
		{"www.example.co.uk", "co.uk", false},
		{"www.example.com", "other.com", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		legal, err := handleCookie(&out, c, tt.host, tt.domain)
		require.NoError(t, err)
		assert.Equal(t, tt.legal, legal, "%s / %s", tt.host, tt.domain)
	}

	_, err := handleCookie(&bytes.Buffer{}, c, ".bad", "example.com")
	assert.Error(t, err)
}

func TestHandleCompare(t *testing.T) {
	c := classifier.New(suffixlist.Embedded())

	var out bytes.Buffer
	ordering, err := handleCompare(&out, c, "www.example.com", "example.com")
	require.NoError(t, err)
	assert.Equal(t, domainname.Less, ordering)
	assert.Equal(t, "less\n", out.String())

	ordering, err = handleCompare(&bytes.Buffer{}, c, "a.example.com", "b.example.com")
	require.NoError(t, err)
	assert.Equal(t, domainname.Incomparable, ordering)
}

func TestHandleLabels(t *testing.T) {
	var out bytes.Buffer
	handleLabels(&out, []string{"example", "ab--cd"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "LABEL"))
	assert.Equal(t, []string{"example", "yes", "yes", "-", "yes", "-", "-", "yes", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"ab--cd", "yes", "yes", "yes", "-", "-", "-", "yes", "-"}, strings.Fields(lines[2]))
}

func TestOpenEnvWithSuffixFile(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "suffixes.dat")
	require.NoError(t, os.WriteFile(listPath, []byte("com\njp\n*.kyoto.jp\n!city.kyoto.jp\n"), 0644))
	useConfig(t, `{"suffix_list": {"path": "`+listPath+`"}}`)

	e, err := openEnv(false)
	require.NoError(t, err)
	defer e.Close()

	var out bytes.Buffer
	handleRulesStats(&out, e)
	assert.Contains(t, out.String(), listPath+" (local file)")
	assert.Contains(t, out.String(), "Rules:      4")

	out.Reset()
	found, err := handleRulesLookup(&out, e.holder, "Kyoto.JP")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "kyoto.jp: wildcard\n", out.String())

	out.Reset()
	found, err = handleRulesLookup(&out, e.holder, "co.uk")
	require.NoError(t, err)
	assert.False(t, found)

	result, err := e.classifier().Classify("www.city.kyoto.jp")
	require.NoError(t, err)
	assert.Equal(t, "city.kyoto.jp", result.Domain)

	assert.Error(t, handleRulesUpdate(&bytes.Buffer{}, e), "update needs a URL source")
}

func TestOpenEnvWithoutConfig(t *testing.T) {
	useConfig(t, "")

	e, err := openEnv(true)
	require.NoError(t, err)
	defer e.Close()

	assert.Nil(t, e.cache, "no remote sources means no cache directory")

	var out bytes.Buffer
	handleRulesStats(&out, e)
	assert.Contains(t, out.String(), "embedded")
	assert.Contains(t, out.String(), "compiled into the binary")
}

func TestOpenEnvWithIPLists(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "documentation.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("192.0.2.0/24\n2001:db8::/32\n"), 0644))
	useConfig(t, `{"ip_lists": {"documentation": {"path": "`+listPath+`"}}}`)

	e, err := openEnv(true)
	require.NoError(t, err)
	defer e.Close()

	result, err := e.classifier().Classify("[2001:db8::1]:443")
	require.NoError(t, err)
	assert.Equal(t, []string{"documentation"}, result.IPLists)
}

func TestHandleIPListCommand(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "documentation.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("# test\n192.0.2.0/24\n198.51.100.7\n"), 0644))
	lists := map[string]iplist.ListConfig{"documentation": {Path: listPath}}

	var out bytes.Buffer
	found, err := handleIPListCommand(&out, nil, lists, nil)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, out.String(), "documentation:")

	out.Reset()
	_, err = handleIPListCommand(&out, []string{"documentation"}, lists, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Entries:     2")

	found, err = handleIPListCommand(&bytes.Buffer{}, []string{"documentation", "contains", "192.0.2.50"}, lists, nil)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = handleIPListCommand(&bytes.Buffer{}, []string{"documentation", "contains", "203.0.113.1"}, lists, nil)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = handleIPListCommand(&bytes.Buffer{}, []string{"documentation", "contains", "not-an-ip"}, lists, nil)
	assert.Error(t, err)

	_, err = handleIPListCommand(&bytes.Buffer{}, []string{"unknown"}, lists, nil)
	assert.Error(t, err)

	_, err = handleIPListCommand(&bytes.Buffer{}, []string{"documentation", "lookup"}, lists, nil)
	assert.Error(t, err)

	out.Reset()
	_, err = handleIPListCommand(&out, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "No IP lists configured\n", out.String())
}

func TestHandleConfigCheck(t *testing.T) {
	cfg, err := config.Parse([]byte(`{
		"suffix_list": {"url": "https://publicsuffix.org/list/public_suffix_list.dat"},
		"server": {"listen": "127.0.0.1:9000"},
		"cache_dir": "/tmp/hostclass",
		"logging": {"sinks": {"requests": {"type": "file", "path": "/tmp/requests.log"}}},
		"realtime": {"key": "k", "channel": "hostclass"}
	}`))
	require.NoError(t, err)

	oldCache := cacheDir
	cacheDir = ""
	defer func() { cacheDir = oldCache }()

	var out bytes.Buffer
	handleConfigCheck(&out, "config.json", cfg)

	for _, want := range []string{
		"Configuration config.json is valid",
		"https://publicsuffix.org/list/public_suffix_list.dat",
		"127.0.0.1:9000",
		"/tmp/hostclass",
		"requests (file)",
		"channel hostclass",
	} {
		assert.Contains(t, out.String(), want)
	}
}

func TestResolveCacheDir(t *testing.T) {
	oldCache := cacheDir
	defer func() { cacheDir = oldCache }()

	cacheDir = "/flag"
	assert.Equal(t, "/flag", resolveCacheDir(&config.Config{CacheDir: "/config"}))

	cacheDir = ""
	assert.Equal(t, "/config", resolveCacheDir(&config.Config{CacheDir: "/config"}))
	assert.Equal(t, "/var/cache/hostclass", resolveCacheDir(&config.Config{}))
}

func TestHandleCacheClear(t *testing.T) {
	dir := useConfig(t, "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	c, err := newCache(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Store("https://example.com/list.txt", []byte("192.0.2.0/24\n")))

	var out bytes.Buffer
	require.NoError(t, handleCacheClear(&out, c))
	assert.Contains(t, out.String(), filepath.Join(dir, "cache"))
	assert.Contains(t, out.String(), "Removed 1 cached file(s)")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}

func TestBuildKind(t *testing.T) {
	assert.Equal(t, "release", buildKind("1.4.0"))
	assert.Equal(t, "release", buildKind("v2.0.0-rc.1"))
	assert.Equal(t, "development build", buildKind("dev"))
}

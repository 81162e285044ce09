package service

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"hostclass/suffixlist"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSuffixList = `// ===BEGIN ICANN DOMAINS===
com
jp
*.kyoto.jp
!city.kyoto.jp
// ===END ICANN DOMAINS===
`

type fixture struct {
	dir        string
	configPath string
	listPath   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		dir:        dir,
		configPath: filepath.Join(dir, "config.json"),
		listPath:   filepath.Join(dir, "public_suffix_list.dat"),
	}
	require.NoError(t, os.WriteFile(f.listPath, []byte(testSuffixList), 0644))
	return f
}

func (f *fixture) writeConfig(t *testing.T, cfg map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.configPath, raw, 0644))
}

func (f *fixture) baseConfig() map[string]interface{} {
	return map[string]interface{}{
		"suffix_list": map[string]interface{}{"path": f.listPath},
		"server":      map[string]interface{}{"listen": "127.0.0.1:0"},
		"logging": map[string]interface{}{"sinks": map[string]interface{}{
			"requests": map[string]interface{}{"type": "file", "path": filepath.Join(f.dir, "requests.log")},
		}},
	}
}

func classify(t *testing.T, s *Service, host string) map[string]interface{} {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("http://%s/v1/classify?host=%s", s.Addr(), host))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	f.writeConfig(t, f.baseConfig())

	s, err := New(Options{
		ConfigPath: f.configPath,
		CacheDir:   filepath.Join(f.dir, "cache"),
		UserAgent:  "hostclass/test",
		Version:    "test",
	})
	require.NoError(t, err)

	errChan, err := s.Start()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	body := classify(t, s, "www.city.kyoto.jp")
	assert.Equal(t, "city.kyoto.jp", body["domain"])

	// The file list has no co.uk rule, unlike the embedded one
	body = classify(t, s, "www.example.co.uk")
	assert.Equal(t, "co.uk", body["domain"])
	assert.Equal(t, false, body["canonical_tld"])

	require.NoError(t, s.Shutdown())
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	logged, err := os.ReadFile(filepath.Join(f.dir, "requests.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logged), `"event":"request"`)
}

func TestServiceConfigReload(t *testing.T) {
	f := newFixture(t)
	f.writeConfig(t, f.baseConfig())

	s, err := New(Options{ConfigPath: f.configPath, CacheDir: filepath.Join(f.dir, "cache")})
	require.NoError(t, err)
	defer s.Shutdown()

	result, err := s.Classifier().Classify("192.0.2.1")
	require.NoError(t, err)
	assert.Empty(t, result.IPLists)

	listPath := filepath.Join(f.dir, "documentation.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("192.0.2.0/24\n"), 0644))

	cfg := f.baseConfig()
	delete(cfg, "suffix_list")
	cfg["ip_lists"] = map[string]interface{}{
		"documentation": map[string]interface{}{"path": listPath},
	}
	f.writeConfig(t, cfg)
	require.NoError(t, s.configMgr.Load())

	result, err = s.Classifier().Classify("192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"documentation"}, result.IPLists)

	// Without a suffix list section the embedded list is served
	result, err = s.Classifier().Classify("www.example.co.uk")
	require.NoError(t, err)
	assert.Equal(t, "example.co.uk", result.Domain)
}

func TestServiceRefreshHooks(t *testing.T) {
	f := newFixture(t)
	cfg := f.baseConfig()
	listPath := filepath.Join(f.dir, "cloud_v4.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("198.51.100.0/24\n"), 0644))
	cfg["ip_lists"] = map[string]interface{}{
		"cloud@v4": map[string]interface{}{"path": listPath},
	}
	f.writeConfig(t, cfg)

	s, err := New(Options{ConfigPath: f.configPath, CacheDir: filepath.Join(f.dir, "cache")})
	require.NoError(t, err)
	defer s.Shutdown()

	require.NoError(t, os.WriteFile(f.listPath, []byte("com\nuk\nco.uk\n"), 0644))
	updated, err := s.ForceLoad()
	require.NoError(t, err)
	assert.True(t, updated)

	kind, ok := s.Classifier().Rule("co.uk")
	require.True(t, ok)
	assert.Equal(t, suffixlist.Exact, kind)

	require.NoError(t, os.Remove(listPath))
	assert.Error(t, s.RefreshListsByBaseID("cloud"), "refreshing a deleted list must fail")
	assert.NoError(t, s.RefreshListsByBaseID("unknown"))

	result, err := s.Classifier().Classify("198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, []string{"cloud@v4"}, result.IPLists, "failed refresh keeps the loaded list")
}

func TestServiceAllowLists(t *testing.T) {
	f := newFixture(t)
	listPath := filepath.Join(f.dir, "office.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("192.0.2.0/24\n"), 0644))

	cfg := f.baseConfig()
	cfg["ip_lists"] = map[string]interface{}{
		"office": map[string]interface{}{"path": listPath},
	}
	cfg["server"] = map[string]interface{}{"listen": "127.0.0.1:0", "allow_lists": []string{"office"}}
	f.writeConfig(t, cfg)

	s, err := New(Options{ConfigPath: f.configPath, CacheDir: filepath.Join(f.dir, "cache")})
	require.NoError(t, err)
	_, err = s.Start()
	require.NoError(t, err)
	defer s.Shutdown()

	status := func() int {
		resp, err := http.Get("http://" + s.Addr() + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusForbidden, status(), "loopback is not in the office list")

	cfg["server"] = map[string]interface{}{"listen": "127.0.0.1:0"}
	f.writeConfig(t, cfg)
	require.NoError(t, s.configMgr.Load())
	assert.Equal(t, http.StatusOK, status())
}

func TestServiceMissingConfig(t *testing.T) {
	_, err := New(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

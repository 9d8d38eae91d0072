package option

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	C "github.com/examproxy/sebproxy/constant"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Parallel()
	options, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	options.ApplyDefaults()
	require.NoError(t, options.Validate())
	require.Equal(t, uint16(8080), options.Inbound.ListenPort)
	require.Equal(t, 10, options.Inbound.PortRetry)
	require.Equal(t, 50, options.Certificate.CacheSize)
	require.Equal(t, []string{"exam.fpt.edu.vn"}, []string(options.Policy.AllowedDomains))
	require.Len(t, options.Policy.InjectedHeaders, 2)
	require.Equal(t, "x-safeexambrowser-configkeyhash", options.Policy.InjectedHeaders[0].Name)
	require.True(t, options.Certificate.WatchEnabled())
	require.True(t, options.Outbound.HTTP2Enabled())
}

func TestReadJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "inbound": {"listen_port": 9000},
  "policy": {"allowed_domains": "example.com"},
  "outbound": {"dial_timeout": "5s", "http2": false}
}`), 0o644))
	options, err := Read(path)
	require.NoError(t, err)
	options.ApplyDefaults()
	require.Equal(t, uint16(9000), options.Inbound.ListenPort)
	require.Equal(t, []string{"example.com"}, []string(options.Policy.AllowedDomains))
	require.Equal(t, 5*time.Second, time.Duration(options.Outbound.DialTimeout))
	require.False(t, options.Outbound.HTTP2Enabled())
}

func TestReadJSONUnknownField(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"inbound": {"port": 1}}`), 0o644))
	_, err := Read(path)
	require.Error(t, err)
}

func TestReadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
certificate:
  directory: /tmp/certs
  cache_size: 5
dns:
  ttl: 30s
policy:
  injected_headers:
    - name: x-test
      value: "1"
`), 0o644))
	options, err := Read(path)
	require.NoError(t, err)
	options.ApplyDefaults()
	require.Equal(t, "/tmp/certs", options.Certificate.Directory)
	require.Equal(t, 5, options.Certificate.CacheSize)
	require.Equal(t, 30*time.Second, time.Duration(options.DNS.TTL))
	require.Equal(t, []HeaderOptions{{Name: "x-test", Value: "1"}}, options.Policy.InjectedHeaders)
}

func TestApplyEnvironment(t *testing.T) {
	t.Parallel()
	var options Options
	require.NoError(t, options.ApplyEnvironment(func(key string) (string, bool) {
		require.Equal(t, C.EnvironmentPort, key)
		return "3128", true
	}))
	require.Equal(t, uint16(3128), options.Inbound.ListenPort)
	require.Error(t, options.ApplyEnvironment(func(string) (string, bool) {
		return "not-a-port", true
	}))
}

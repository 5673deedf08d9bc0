package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "server_config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRecursiveConfig(t *testing.T) {
	path := writeConfig(t, `{
		"dns_host": "0.0.0.0",
		"dns_port": 5353,
		"resolve_strategy": "Recursive",
		"allow_recursive": true,
		"enable_udp": true,
		"enable_tcp": true,
		"thread_count": 8
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.DNSHost)
	assert.Equal(t, uint16(5353), cfg.DNSPort)
	assert.True(t, cfg.ResolveStrategy.Recursive)
	assert.Nil(t, cfg.ResolveStrategy.Forward)
	assert.Equal(t, 8, cfg.ThreadCount)
	assert.Equal(t, uint32(5000), cfg.UpstreamTimeoutMS, "default should apply")
}

func TestLoadForwardConfig(t *testing.T) {
	path := writeConfig(t, `{
		"dns_host": "127.0.0.1",
		"resolve_strategy": {"Forward": {"host": "1.1.1.1", "port": 53}},
		"enable_udp": true
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.ResolveStrategy.Forward)
	assert.Equal(t, "1.1.1.1", cfg.ResolveStrategy.Forward.Host)
	assert.False(t, cfg.ResolveStrategy.Recursive)
	assert.Equal(t, uint16(53), cfg.DNSPort, "default should apply")
}

func TestLoadRejectsMissingHost(t *testing.T) {
	path := writeConfig(t, `{"resolve_strategy": "Recursive", "enable_udp": true}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNoTransportEnabled(t *testing.T) {
	path := writeConfig(t, `{"dns_host": "127.0.0.1", "resolve_strategy": "Recursive"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEqualIgnoresNothingButCompares(t *testing.T) {
	a, err := Load(writeConfig(t, `{"dns_host":"127.0.0.1","resolve_strategy":"Recursive","enable_udp":true}`))
	require.NoError(t, err)
	b, err := Load(writeConfig(t, `{"dns_host":"127.0.0.1","resolve_strategy":"Recursive","enable_udp":true}`))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	b.ThreadCount = a.ThreadCount + 1
	assert.False(t, a.Equal(b))
}

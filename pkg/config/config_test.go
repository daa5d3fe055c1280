package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, uint32(30), cfg.Engine.MaxRequestsPerMinute)
	assert.Equal(t, uint32(500), cfg.Engine.MaxRequestsPerHour)
	assert.NotEmpty(t, cfg.Fetch.Gateways)
	assert.Equal(t, 8192, cfg.Fetch.MaxSampleSize)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server": {"address": ":9090"},
		"engine": {"max_requests_per_minute": 5}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, uint32(5), cfg.Engine.MaxRequestsPerMinute)
	// Untouched fields keep their defaults.
	assert.Equal(t, uint32(500), cfg.Engine.MaxRequestsPerHour)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CUSTODY_LISTEN_ADDRESS", ":7070")
	t.Setenv("CUSTODY_MAX_REQUESTS_PER_MINUTE", "12")
	t.Setenv("CUSTODY_GATEWAYS", "https://a.example/ipfs, https://b.example/ipfs")
	t.Setenv("CUSTODY_FETCH_TIMEOUT", "3s")

	cfg := LoadFromEnv()
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, uint32(12), cfg.Engine.MaxRequestsPerMinute)
	assert.Equal(t, []string{"https://a.example/ipfs", "https://b.example/ipfs"}, cfg.Fetch.Gateways)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
}

func TestLoadFromEnvBadValues(t *testing.T) {
	t.Setenv("CUSTODY_MAX_REQUESTS_PER_MINUTE", "not-a-number")
	t.Setenv("CUSTODY_FETCH_TIMEOUT", "garbage")

	cfg := LoadFromEnv()
	assert.Equal(t, uint32(30), cfg.Engine.MaxRequestsPerMinute, "bad values fall back to defaults")
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
}

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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Search.DefaultHops)
	assert.Equal(t, 6, cfg.Search.MaxHops)
	assert.Equal(t, ModeAPI, cfg.Ethereum.Mode)
	assert.Equal(t, ModeAPI, cfg.Solana.Mode)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
search:
  default_hops: 3
  max_hops: 8
solana:
  enabled: true
  mode: index
`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("ETH_API_KEY", "secret")
	t.Setenv("ETH_RATE_LIMIT", "2.5")
	t.Setenv("SEARCH_FETCH_CONCURRENCY", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Search.DefaultHops)
	assert.Equal(t, 8, cfg.Search.MaxHops)
	assert.Equal(t, 4, cfg.Search.FetchConcurrency)
	assert.Equal(t, ModeIndex, cfg.Solana.Mode)
	assert.Equal(t, "secret", cfg.Ethereum.APIKey)
	assert.InDelta(t, 2.5, cfg.Ethereum.RateLimit, 1e-9)
	// untouched defaults survive a partial yaml section
	assert.Equal(t, "https://api.etherscan.io/api", cfg.Ethereum.BaseURL)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"default hops", func(c *Config) { c.Search.DefaultHops = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxHops = 1 }},
		{"concurrency", func(c *Config) { c.Search.FetchConcurrency = 0 }},
		{"batch size", func(c *Config) { c.Index.BatchSize = -1 }},
		{"unknown mode", func(c *Config) { c.Ethereum.Mode = "rpc" }},
		{"api without url", func(c *Config) { c.Solana.BaseURL = "" }},
		{"api without pages", func(c *Config) { c.Solana.MaxPages = 0 }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	disabled := Default()
	disabled.Solana.Enabled = false
	disabled.Solana.BaseURL = ""
	assert.NoError(t, disabled.Validate())
}

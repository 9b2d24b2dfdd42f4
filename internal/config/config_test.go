package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.7, cfg.Gate.Threshold)
	assert.Equal(t, "majority", cfg.Council.Quorum)
	assert.GreaterOrEqual(t, len(cfg.Council.Members), 2)
	assert.Contains(t, cfg.Backends, cfg.Routing.DefaultBackend)
}

func TestLoadFromPathCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	// File must now exist and contain the default roster.
	_, err = os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Routing.DefaultBackend)
	assert.Equal(t, 45*time.Second, cfg.Routing.CouncilDeadline)
	require.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Gate.Threshold = 0.55
	cfg.Council.Quorum = "fraction"
	cfg.Council.AcceptFraction = 0.67
	cfg.Council.CancelOnQuorum = true
	require.NoError(t, cfg.SaveToPath(path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 0.55, loaded.Gate.Threshold)
	assert.Equal(t, "fraction", loaded.Council.Quorum)
	assert.Equal(t, 0.67, loaded.Council.AcceptFraction)
	assert.True(t, loaded.Council.CancelOnQuorum)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Gate.Threshold = 1.5 }},
		{"negative threshold", func(c *Config) { c.Gate.Threshold = -0.1 }},
		{"zero entropy factor", func(c *Config) { c.Gate.EntropyFactor = 0 }},
		{"empty default backend", func(c *Config) { c.Routing.DefaultBackend = "" }},
		{"unknown default backend", func(c *Config) { c.Routing.DefaultBackend = "nope" }},
		{"zero single deadline", func(c *Config) { c.Routing.SingleDeadline = 0 }},
		{"one council member", func(c *Config) { c.Council.Members = []string{"ollama"} }},
		{"member not in roster", func(c *Config) { c.Council.Members = []string{"ollama", "nope"} }},
		{"bad quorum mode", func(c *Config) { c.Council.Quorum = "unanimous" }},
		{"fraction out of range", func(c *Config) {
			c.Council.Quorum = "fraction"
			c.Council.AcceptFraction = 1.2
		}},
		{"unknown backend kind", func(c *Config) {
			c.Backends["weird"] = BackendConfig{Kind: "carrier-pigeon"}
		}},
		{"outcome enabled without path", func(c *Config) {
			c.Outcome.Enabled = true
			c.Outcome.DBPath = ""
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAPIKeyFallsBackToEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	t.Setenv("OPENAI_API_KEY", "sk-test-env")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-env", cfg.Backends["openai"].APIKey)
}

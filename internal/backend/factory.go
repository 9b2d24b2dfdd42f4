package backend

import (
	"fmt"

	"github.com/normanking/gravitas/internal/config"
)

// New creates a connector for one configured backend identity. All
// connectors are wrapped with MetricsConnector for call counting and
// latency tracking, and registered for the diagnostics surface.
func New(name string, cfg config.BackendConfig) (Connector, error) {
	var conn Connector

	switch cfg.Kind {
	case "ollama":
		conn = NewOllamaConnector(name, cfg.Endpoint, cfg.Model)
	case "openai":
		conn = NewOpenAIConnector(name, cfg.Endpoint, cfg.APIKey, cfg.Model)
	case "anthropic":
		conn = NewAnthropicConnector(name, cfg.Endpoint, cfg.APIKey, cfg.Model)
	case "gemini":
		conn = NewGeminiConnector(name, cfg.Endpoint, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown backend kind: %s", cfg.Kind)
	}

	mc := NewMetricsConnector(conn)
	Register(mc)
	return mc, nil
}

// Roster builds the named connectors from configuration, keyed by identity.
func Roster(cfg *config.Config) (map[string]Connector, error) {
	roster := make(map[string]Connector, len(cfg.Backends))
	for name, backendCfg := range cfg.Backends {
		conn, err := New(name, backendCfg)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
		roster[name] = conn
	}
	return roster, nil
}

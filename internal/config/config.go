package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all process-wide configuration for the Gravitas orchestrator.
// It is loaded from ~/.gravitas/config.yaml and can be overridden by
// environment variables. After Load returns, the value is treated as
// immutable: it is passed explicitly into constructors and never mutated
// during a request's lifetime, so concurrent requests may read it freely.
type Config struct {
	Gate     GateConfig               `mapstructure:"gate" yaml:"gate"`
	Routing  RoutingConfig            `mapstructure:"routing" yaml:"routing"`
	Council  CouncilConfig            `mapstructure:"council" yaml:"council"`
	Backends map[string]BackendConfig `mapstructure:"backends" yaml:"backends"`
	Outcome  OutcomeConfig            `mapstructure:"outcome" yaml:"outcome"`
	Server   ServerConfig             `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig            `mapstructure:"logging" yaml:"logging"`
}

// GateConfig tunes the density classifier.
type GateConfig struct {
	// Threshold is the routing cutoff T on the [0,1) density score.
	// Scores >= Threshold take the council path; equality favors council.
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`

	// EntropyFactor scales the deflate redundancy into the entropy proxy.
	// Carried from the semantic kernel calibration; rarely needs changing.
	EntropyFactor float64 `mapstructure:"entropy_factor" yaml:"entropy_factor"`

	// CriticalEntropy is the raw-entropy value that squashes to a density
	// score of 1-1/e. It also anchors the dense/critical/saturated bands.
	CriticalEntropy float64 `mapstructure:"critical_entropy" yaml:"critical_entropy"`
}

// RoutingConfig selects backends and deadlines for the two execution paths.
type RoutingConfig struct {
	// DefaultBackend is the single-path backend name (must exist in Backends).
	DefaultBackend string `mapstructure:"default_backend" yaml:"default_backend"`

	// SingleDeadline bounds the one invocation on the single path.
	SingleDeadline time.Duration `mapstructure:"single_deadline" yaml:"single_deadline"`

	// CouncilDeadline bounds each council invocation independently, and the
	// council's overall wait.
	CouncilDeadline time.Duration `mapstructure:"council_deadline" yaml:"council_deadline"`
}

// CouncilConfig controls the fan-out path and its quorum policy.
type CouncilConfig struct {
	// Members lists the backend names convened on the council path.
	// At least two members are required.
	Members []string `mapstructure:"members" yaml:"members"`

	// Quorum selects the acceptance arithmetic: "majority" (floor(N/2)+1
	// successes) or "fraction" (ceil(N*AcceptFraction) successes).
	Quorum string `mapstructure:"quorum" yaml:"quorum"`

	// AcceptFraction is the required success fraction when Quorum is
	// "fraction". Ignored for "majority".
	AcceptFraction float64 `mapstructure:"accept_fraction" yaml:"accept_fraction"`

	// CancelOnQuorum cancels in-flight invocations once the verdict is
	// decidable. Cancellation is advisory; late responses are discarded.
	CancelOnQuorum bool `mapstructure:"cancel_on_quorum" yaml:"cancel_on_quorum"`
}

// BackendConfig configures one inference backend identity.
type BackendConfig struct {
	// Kind names the wire adapter ("ollama", "openai", "anthropic", "gemini").
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Endpoint is the API base URL (primarily for local backends).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	// APIKey is the authentication key for the backend.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the specific model served by this identity.
	Model string `mapstructure:"model" yaml:"model,omitempty"`
}

// OutcomeConfig controls the diagnostic outcome store. Only scores,
// verdicts and latencies are recorded; input text never is.
type OutcomeConfig struct {
	// Enabled turns outcome recording on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// DBPath is the path to the SQLite outcome database.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// ServerConfig configures the HTTP/WebSocket surface of `gravitas serve`.
type ServerConfig struct {
	// Host is the listen address (default 127.0.0.1).
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the listen port.
	Port int `mapstructure:"port" yaml:"port"`
}

// LoggingConfig contains configuration for application logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error")
	Level string `mapstructure:"level" yaml:"level"`
	// File is the path to the log file
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns the configuration used when no config file exists yet.
// The default roster carries three independent backend identities so the
// council path is exercisable out of the box.
func Default() *Config {
	return &Config{
		Gate: GateConfig{
			Threshold:       0.7,
			EntropyFactor:   0.18,
			CriticalEntropy: 2.76,
		},
		Routing: RoutingConfig{
			DefaultBackend:  "ollama",
			SingleDeadline:  30 * time.Second,
			CouncilDeadline: 45 * time.Second,
		},
		Council: CouncilConfig{
			Members:        []string{"ollama", "openai", "anthropic"},
			Quorum:         "majority",
			AcceptFraction: 0.5,
			CancelOnQuorum: false,
		},
		Backends: map[string]BackendConfig{
			"ollama": {
				Kind:     "ollama",
				Endpoint: "http://127.0.0.1:11434",
				Model:    "llama3",
			},
			"openai": {
				Kind:     "openai",
				Endpoint: "https://api.openai.com/v1",
				Model:    "gpt-4o-mini",
			},
			"anthropic": {
				Kind:     "anthropic",
				Endpoint: "https://api.anthropic.com",
				Model:    "claude-3-5-sonnet-20241022",
			},
		},
		Outcome: OutcomeConfig{
			Enabled: true,
			DBPath:  "~/.gravitas/outcomes.db",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7436,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "~/.gravitas/gravitas.log",
		},
	}
}

// Load reads configuration from the default location (~/.gravitas/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".gravitas", "config.yaml")
	return LoadFromPath(configPath)
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it creates one with
// default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Enable environment variable overrides
	// Example: GRAVITAS_BACKENDS_OPENAI_API_KEY
	v.SetEnvPrefix("GRAVITAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Outcome.DBPath = expandPath(cfg.Outcome.DBPath)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	// API keys fall back to the conventional environment variables when the
	// config file leaves them blank.
	for name, b := range cfg.Backends {
		if b.APIKey == "" {
			b.APIKey = apiKeyFromEnv(b.Kind)
			cfg.Backends[name] = b
		}
	}

	return &cfg, nil
}

// apiKeyFromEnv retrieves the API key from standard environment variables.
func apiKeyFromEnv(kind string) string {
	envVars := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	}
	if envVar, ok := envVars[kind]; ok {
		return os.Getenv(envVar)
	}
	return ""
}

// Save writes the current configuration to the default config file location.
func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".gravitas", "config.yaml")
	return c.SaveToPath(configPath)
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)

	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return writeConfigFile(path, c)
}

// Validate checks the configuration for common errors and inconsistencies.
func (c *Config) Validate() error {
	if c.Gate.Threshold < 0 || c.Gate.Threshold > 1 {
		return fmt.Errorf("gate.threshold must be within [0,1], got %v", c.Gate.Threshold)
	}
	if c.Gate.EntropyFactor <= 0 {
		return fmt.Errorf("gate.entropy_factor must be positive, got %v", c.Gate.EntropyFactor)
	}
	if c.Gate.CriticalEntropy <= 0 {
		return fmt.Errorf("gate.critical_entropy must be positive, got %v", c.Gate.CriticalEntropy)
	}

	if c.Routing.DefaultBackend == "" {
		return fmt.Errorf("routing.default_backend cannot be empty")
	}
	if _, exists := c.Backends[c.Routing.DefaultBackend]; !exists {
		return fmt.Errorf("default backend '%s' not found in backends map", c.Routing.DefaultBackend)
	}
	if c.Routing.SingleDeadline <= 0 {
		return fmt.Errorf("routing.single_deadline must be positive")
	}
	if c.Routing.CouncilDeadline <= 0 {
		return fmt.Errorf("routing.council_deadline must be positive")
	}

	if len(c.Council.Members) < 2 {
		return fmt.Errorf("council.members needs at least 2 backends, got %d", len(c.Council.Members))
	}
	for _, name := range c.Council.Members {
		if _, exists := c.Backends[name]; !exists {
			return fmt.Errorf("council member '%s' not found in backends map", name)
		}
	}
	switch c.Council.Quorum {
	case "majority":
	case "fraction":
		if c.Council.AcceptFraction <= 0 || c.Council.AcceptFraction > 1 {
			return fmt.Errorf("council.accept_fraction must be within (0,1], got %v", c.Council.AcceptFraction)
		}
	default:
		return fmt.Errorf("invalid quorum '%s', must be 'majority' or 'fraction'", c.Council.Quorum)
	}

	validKinds := map[string]bool{"ollama": true, "openai": true, "anthropic": true, "gemini": true}
	for name, b := range c.Backends {
		if !validKinds[b.Kind] {
			return fmt.Errorf("backend '%s' has unknown kind '%s'", name, b.Kind)
		}
	}

	if c.Outcome.Enabled && c.Outcome.DBPath == "" {
		return fmt.Errorf("outcome.db_path cannot be empty when outcome recording is enabled")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within [0,65535], got %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
// Uses gopkg.in/yaml.v3 directly to ensure proper tag-based serialization.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/maestro/backend/internal/shared/types"
)

// EnvConfigFile names the variable holding an optional config file path.
const EnvConfigFile = "MAESTRO_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" toml:"server"`
	Terminal     TerminalConfig     `yaml:"terminal" toml:"terminal"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" toml:"orchestrator"`
	Client       ClientConfig       `yaml:"client" toml:"client"`
	Logging      LogConfig          `yaml:"logging" toml:"logging"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds the backend listen address.
type ServerConfig struct {
	Host string `envconfig:"MAESTRO_HOST" yaml:"host" toml:"host"`
	Port string `envconfig:"MAESTRO_PORT" yaml:"port" toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// TerminalConfig holds PTY process settings.
type TerminalConfig struct {
	Shell        string   `envconfig:"MAESTRO_SHELL" yaml:"shell" toml:"shell"`
	KillGrace    Duration `envconfig:"MAESTRO_KILL_GRACE" yaml:"kill_grace" toml:"kill_grace"`
	KillPoll     Duration `envconfig:"MAESTRO_KILL_POLL" yaml:"kill_poll" toml:"kill_poll"`
	MaxDimension int      `envconfig:"MAESTRO_MAX_DIMENSION" yaml:"max_dimension" toml:"max_dimension"`
	ReadChunk    int      `envconfig:"MAESTRO_READ_CHUNK" yaml:"read_chunk" toml:"read_chunk"`
}

// OrchestratorConfig holds workspace session policy.
type OrchestratorConfig struct {
	MaxSessions       int      `envconfig:"MAESTRO_MAX_SESSIONS" yaml:"max_sessions" toml:"max_sessions"`
	Workspace         string   `envconfig:"MAESTRO_WORKSPACE" yaml:"workspace" toml:"workspace"`
	ReconcileInterval Duration `envconfig:"MAESTRO_RECONCILE_INTERVAL" yaml:"reconcile_interval" toml:"reconcile_interval"`
	Mode              string   `envconfig:"MAESTRO_MODE" yaml:"mode" toml:"mode"`
}

// ClientConfig holds settings for the workspace client.
type ClientConfig struct {
	BackendURL   string   `envconfig:"MAESTRO_BACKEND_URL" yaml:"backend_url" toml:"backend_url"`
	ReadyTimeout Duration `envconfig:"MAESTRO_READY_TIMEOUT" yaml:"ready_timeout" toml:"ready_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"MAESTRO_LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"MAESTRO_LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"MAESTRO_RATE_LIMIT_RPS" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"MAESTRO_RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"MAESTRO_RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`
}

// Load builds configuration from defaults, the optional config file and the
// environment, in that order.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration or falls back to defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8077",
		},
		Terminal: TerminalConfig{
			KillGrace:    Duration{3 * time.Second},
			KillPoll:     Duration{100 * time.Millisecond},
			MaxDimension: 500,
			ReadChunk:    4096,
		},
		Orchestrator: OrchestratorConfig{
			MaxSessions:       6,
			ReconcileInterval: Duration{30 * time.Second},
		},
		Client: ClientConfig{
			BackendURL:   "http://127.0.0.1:8077",
			ReadyTimeout: Duration{10 * time.Second},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate rejects configurations the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Orchestrator.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max_sessions must be at least 1, got %d", c.Orchestrator.MaxSessions))
	}
	if c.Terminal.KillGrace.Duration <= 0 {
		errs = append(errs, errors.New("kill_grace must be positive"))
	}
	if c.Terminal.KillPoll.Duration <= 0 {
		errs = append(errs, errors.New("kill_poll must be positive"))
	}
	if c.Terminal.MaxDimension < 1 || c.Terminal.MaxDimension > 0xFFFF {
		errs = append(errs, fmt.Errorf("max_dimension out of range: %d", c.Terminal.MaxDimension))
	}
	if c.Terminal.ReadChunk < 1 {
		errs = append(errs, errors.New("read_chunk must be positive"))
	}
	if c.Orchestrator.ReconcileInterval.Duration <= 0 {
		errs = append(errs, errors.New("reconcile_interval must be positive"))
	}
	if m := types.Mode(c.Orchestrator.Mode); m != "" && !m.Valid() {
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Orchestrator.Mode))
	}
	return errors.Join(errs...)
}

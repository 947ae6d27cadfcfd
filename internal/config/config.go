// ABOUTME: Configuration loading and parsing for feynomenon-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete feynomenon-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Sessions SessionsConfig `yaml:"sessions"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// GeminiConfig holds model gateway configuration
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`

	// Temperature is a pointer so an explicit 0 (deterministic output) is
	// distinguishable from unset.
	Temperature     *float32 `yaml:"temperature"`
	MaxOutputTokens int32    `yaml:"max_output_tokens"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// SessionsConfig holds session store and dialogue limits
type SessionsConfig struct {
	IdleTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	IdleTTLRaw string `yaml:"idle_ttl"`

	MaxSessions     int `yaml:"max_sessions"`
	MaxContextTurns int `yaml:"max_context_turns"`
	MaxMessageChars int `yaml:"max_message_chars"`
}

// ArchiveConfig holds transcript archive configuration
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves a field unset.
const (
	DefaultModel           = "gemini-1.5-flash"
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 1000
	DefaultTimeout         = 30 * time.Second
	DefaultIdleTTL         = 30 * time.Minute
	DefaultMaxSessions     = 10_000
	DefaultMaxContextTurns = 40
	DefaultMaxMessageChars = 4000
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Gemini.Model == "" {
		c.Gemini.Model = DefaultModel
	}
	if c.Gemini.Temperature == nil {
		temp := float32(DefaultTemperature)
		c.Gemini.Temperature = &temp
	}
	if c.Gemini.MaxOutputTokens == 0 {
		c.Gemini.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.Gemini.Timeout == 0 {
		c.Gemini.Timeout = DefaultTimeout
	}
	if c.Sessions.IdleTTL == 0 {
		c.Sessions.IdleTTL = DefaultIdleTTL
	}
	if c.Sessions.MaxSessions == 0 {
		c.Sessions.MaxSessions = DefaultMaxSessions
	}
	if c.Sessions.MaxContextTurns == 0 {
		c.Sessions.MaxContextTurns = DefaultMaxContextTurns
	}
	if c.Sessions.MaxMessageChars == 0 {
		c.Sessions.MaxMessageChars = DefaultMaxMessageChars
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive is enabled")
	}

	if c.Sessions.MaxContextTurns < 2 {
		return fmt.Errorf("sessions.max_context_turns must be at least 2")
	}

	if c.Gemini.Temperature != nil && (*c.Gemini.Temperature < 0 || *c.Gemini.Temperature > 2) {
		return fmt.Errorf("gemini.temperature must be between 0 and 2")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gemini.TimeoutRaw != "" {
		cfg.Gemini.Timeout, err = time.ParseDuration(cfg.Gemini.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing gemini.timeout %q: %w", cfg.Gemini.TimeoutRaw, err)
		}
	}

	if cfg.Sessions.IdleTTLRaw != "" {
		cfg.Sessions.IdleTTL, err = time.ParseDuration(cfg.Sessions.IdleTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing sessions.idle_ttl %q: %w", cfg.Sessions.IdleTTLRaw, err)
		}
	}

	return nil
}

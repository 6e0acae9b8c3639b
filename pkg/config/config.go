// Package config loads savana server configuration from YAML files and
// environment variables. Precedence: defaults, then config file, then
// SAVANA_* environment overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultGeminiModel   = "gemini-2.5-flash"
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// MinSecretLength is the minimum accepted length for the JWT signing
	// secret. Shorter secrets are rejected at validation.
	MinSecretLength = 32
)

// Default configuration values exported for documentation and validation
const (
	DefaultBind         = "0.0.0.0:8080"
	DefaultDatabasePath = "savana.db"
	DefaultTokenTTL     = 24 * time.Hour
	DefaultBCryptCost   = 10
	DefaultNATSURL      = "nats://127.0.0.1:4222"
)

// Config represents the complete savana server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	AI       AIConfig       `yaml:"ai"`
	Bus      BusConfig      `yaml:"bus"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PublicMetrics   bool          `yaml:"public_metrics"`
}

// DatabaseConfig controls SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig controls JWT issuance and password hashing.
type AuthConfig struct {
	Secret     string        `yaml:"secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BCryptCost int           `yaml:"bcrypt_cost"`
}

// AIConfig controls the Gemini generation gateway.
type AIConfig struct {
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// BusConfig controls cross-instance room mirroring. When disabled, rooms
// live on a single instance and the in-memory bus is used.
type BusConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Bind:            DefaultBind,
			AllowedOrigins:  []string{"http://localhost", "http://127.0.0.1"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			PublicMetrics:   false,
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath,
		},
		Auth: AuthConfig{
			Secret:     "",
			TokenTTL:   DefaultTokenTTL,
			BCryptCost: DefaultBCryptCost,
		},
		AI: AIConfig{
			Model:             defaultGeminiModel,
			BaseURL:           defaultGeminiBaseURL,
			Timeout:           60 * time.Second,
			RequestsPerSecond: 1,
		},
		Bus: BusConfig{
			Enabled: false,
			URL:     DefaultNATSURL,
			Name:    "savana",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from default locations with proper precedence
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Load user config (~/.savana/config.yaml)
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userConfigPath := filepath.Join(home, ".savana", "config.yaml")
		if err := loadAndMerge(cfg, userConfigPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	// Load working-directory config (./savana.yaml)
	if err := loadAndMerge(cfg, "savana.yaml"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading local config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// ApplyEnvOverridesForTest exposes env override logic for tests without file I/O.
func ApplyEnvOverridesForTest(cfg *Config) {
	applyEnvOverrides(cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAVANA_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("SAVANA_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitCommaList(v)
	}
	if v, ok := envBool("SAVANA_PUBLIC_METRICS"); ok {
		cfg.Server.PublicMetrics = v
	}

	if v := os.Getenv("SAVANA_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SAVANA_JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("SAVANA_TOKEN_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Auth.TokenTTL = d
		}
	}

	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("SAVANA_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("SAVANA_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("SAVANA_AI_BASE_URL"); v != "" {
		cfg.AI.BaseURL = v
	}

	if v, ok := envBool("SAVANA_BUS_ENABLED"); ok {
		cfg.Bus.Enabled = v
	}
	if v := os.Getenv("SAVANA_NATS_URL"); v != "" {
		cfg.Bus.URL = v
		cfg.Bus.Enabled = true
	}

	if v := os.Getenv("SAVANA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Bind); err != nil {
		return fmt.Errorf("invalid server bind %q: %w", c.Server.Bind, err)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth secret is required (set SAVANA_JWT_SECRET)")
	}
	if len(c.Auth.Secret) < MinSecretLength {
		return fmt.Errorf("auth secret must be at least %d characters", MinSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q (valid: debug, info, warn, error)", c.Logging.Level)
	}
	if c.Bus.Enabled && strings.TrimSpace(c.Bus.URL) == "" {
		return fmt.Errorf("bus.url is required when the bus is enabled")
	}
	if c.AI.RequestsPerSecond < 0 {
		return fmt.Errorf("ai.requests_per_second must be >= 0")
	}
	return nil
}

// ValidationWarnings returns non-fatal warnings about the configuration.
// These don't prevent operation but indicate potential security issues.
func (c *Config) ValidationWarnings() []string {
	var warnings []string

	if c.Auth.Secret != "" && os.Getenv("SAVANA_JWT_SECRET") == "" {
		warnings = append(warnings, "SECURITY: JWT secret is stored in config file. Consider using SAVANA_JWT_SECRET environment variable instead.")
	}
	if c.AI.APIKey != "" && os.Getenv("GOOGLE_API_KEY") == "" && os.Getenv("SAVANA_AI_API_KEY") == "" {
		warnings = append(warnings, "SECURITY: AI API key is stored in config file. Consider using GOOGLE_API_KEY environment variable instead.")
	}
	if c.AI.APIKey == "" {
		warnings = append(warnings, "AI API key is not set; assistant replies will be unavailable.")
	}

	return warnings
}

func splitCommaList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func envBool(key string) (bool, bool) {
	val := os.Getenv(key)
	if val == "" {
		return false, false
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

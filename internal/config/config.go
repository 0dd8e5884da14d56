// ABOUTME: Configuration loading and validation for coven-chat
// ABOUTME: Reads YAML or TOML with ${VAR} expansion on top of working defaults

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for the chat client and reference backend.
type Config struct {
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	History   HistoryConfig   `yaml:"history" toml:"history"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Upload    UploadConfig    `yaml:"upload" toml:"upload"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// BackendConfig locates the assistant backend. Token, when set, is sent as
// a bearer JWT on every request.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" toml:"base_url"`
	UserID  string        `yaml:"user_id" toml:"user_id"`
	Token   string        `yaml:"token" toml:"token"`
	Timeout time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// HistoryConfig controls history aggregation.
type HistoryConfig struct {
	// IngestionMarkers are prefixes of system messages that record an ingested document.
	IngestionMarkers []string `yaml:"ingestion_markers" toml:"ingestion_markers"`
	RefreshAfterSend bool     `yaml:"refresh_after_send" toml:"refresh_after_send"`
}

// SessionConfig controls live-session behavior.
type SessionConfig struct {
	RetractOnFailure bool `yaml:"retract_on_failure" toml:"retract_on_failure"`
}

// UploadConfig bounds document text taken from uploads.
type UploadConfig struct {
	MaxDocumentChars int `yaml:"max_document_chars" toml:"max_document_chars"`
	MaxQuestionChars int `yaml:"max_question_chars" toml:"max_question_chars"`
}

// ServerConfig is the reference backend's listener.
type ServerConfig struct {
	HTTPAddr       string        `yaml:"http_addr" toml:"http_addr"`
	IdempotencyTTL time.Duration `yaml:"-" toml:"-"`

	IdempotencyTTLRaw string `yaml:"idempotency_ttl" toml:"idempotency_ttl"`
}

// AuthConfig enables JWT bearer auth on the reference backend's API.
// An empty secret leaves the API open.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// TailscaleConfig serves the reference backend on a tailnet via tsnet
// instead of server.http_addr.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig is the reference backend's store.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
	Path   string `yaml:"path" toml:"path"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "text" or "json"
}

// Default returns a configuration that works against a local reference backend.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:    "http://localhost:8080",
			Timeout:    60 * time.Second,
			TimeoutRaw: "60s",
		},
		History: HistoryConfig{
			IngestionMarkers: []string{"[document ingested]"},
		},
		Upload: UploadConfig{
			MaxDocumentChars: 20000,
			MaxQuestionChars: 6000,
		},
		Server: ServerConfig{
			HTTPAddr:          "localhost:8080",
			IdempotencyTTL:    10 * time.Minute,
			IdempotencyTTLRaw: "10m",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DataPath(), "chat.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the config file location.
// Priority: COVEN_CHAT_CONFIG env var > XDG_CONFIG_HOME/coven/chat.yaml > ~/.config/coven/chat.yaml
func Path() string {
	if envPath := os.Getenv("COVEN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "chat.yaml")
}

// DataPath returns the coven data directory.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coven")
}

// Load reads the config at path over Default(). Files ending in .toml are
// parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default() when it does not.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}

	if c.Upload.MaxDocumentChars <= 0 {
		return fmt.Errorf("upload.max_document_chars must be positive")
	}
	if c.Upload.MaxQuestionChars <= 0 {
		return fmt.Errorf("upload.max_question_chars must be positive")
	}

	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}
	if c.Server.IdempotencyTTL <= 0 {
		return fmt.Errorf("server.idempotency_ttl must be positive")
	}

	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Server.IdempotencyTTLRaw != "" {
		cfg.Server.IdempotencyTTL, err = time.ParseDuration(cfg.Server.IdempotencyTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing server.idempotency_ttl %q: %w", cfg.Server.IdempotencyTTLRaw, err)
		}
	}

	return nil
}

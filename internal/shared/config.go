package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Realtime RealtimeConfig `toml:"realtime"`
	Uploads  UploadsConfig  `toml:"uploads"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// APIConfig points the client at the dashboard server.
type APIConfig struct {
	BaseURL string        `toml:"base_url"`
	Timeout time.Duration `toml:"timeout"`
}

// RealtimeConfig contains push channel settings.
//
// URL may be left empty, in which case it is derived from [APIConfig.BaseURL].
type RealtimeConfig struct {
	URL               string        `toml:"url"`
	ReconnectAttempts int           `toml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `toml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `toml:"reconnect_delay_max"`
}

// UploadsConfig contains upload validation and reconciliation settings.
type UploadsConfig struct {
	MaxSizeMB    int64         `toml:"max_size_mb"`
	AllowedTypes []string      `toml:"allowed_types"`
	PollInterval time.Duration `toml:"poll_interval"`
	PollRate     float64       `toml:"poll_rate"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains diagnostics HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the default log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (u UploadsConfig) MaxUploadBytes() int64 {
	return u.MaxSizeMB * 1024 * 1024
}

// RealtimeURL returns the configured websocket URL, deriving ws(s)://host/ws from the API base URL when unset.
func (c *Config) RealtimeURL() (string, error) {
	if c.Realtime.URL != "" {
		return c.Realtime.URL, nil
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: api.base_url: %v", ErrInvalidConfig, err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Path = strings.TrimSuffix(u.Path, "/api") + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", ErrInvalidConfig)
	}
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("%w: api.base_url: %v", ErrInvalidConfig, err)
	}
	if c.Realtime.ReconnectAttempts < 0 {
		return fmt.Errorf("%w: realtime.reconnect_attempts must not be negative", ErrInvalidConfig)
	}
	if c.Uploads.MaxSizeMB <= 0 {
		return fmt.Errorf("%w: uploads.max_size_mb must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

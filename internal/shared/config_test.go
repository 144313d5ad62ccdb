package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.API.BaseURL != "http://localhost:5000/api" {
			t.Errorf("expected base url http://localhost:5000/api, got %s", config.API.BaseURL)
		}

		if config.API.Timeout != 30*time.Second {
			t.Errorf("expected api timeout 30s, got %v", config.API.Timeout)
		}

		if config.Realtime.ReconnectAttempts != 5 {
			t.Errorf("expected 5 reconnect attempts, got %d", config.Realtime.ReconnectAttempts)
		}

		if config.Realtime.ReconnectDelay != time.Second || config.Realtime.ReconnectDelayMax != 5*time.Second {
			t.Errorf("unexpected reconnect delays %v / %v", config.Realtime.ReconnectDelay, config.Realtime.ReconnectDelayMax)
		}

		if got := config.Uploads.MaxUploadBytes(); got != 500*1024*1024 {
			t.Errorf("expected 500MB ceiling, got %d", got)
		}

		if len(config.Uploads.AllowedTypes) != 6 {
			t.Errorf("expected 6 allowed types, got %d", len(config.Uploads.AllowedTypes))
		}

		if err := config.Validate(); err != nil {
			t.Errorf("default config should validate: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig keeps defaults for missing keys", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[api]
base_url = "https://videos.example.com/api"

[realtime]
reconnect_attempts = 2

[server]
port = 8080
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.API.BaseURL != "https://videos.example.com/api" {
			t.Errorf("unexpected base url %s", config.API.BaseURL)
		}
		if config.Realtime.ReconnectAttempts != 2 {
			t.Errorf("expected 2 reconnect attempts, got %d", config.Realtime.ReconnectAttempts)
		}
		if config.Realtime.ReconnectDelayMax != 5*time.Second {
			t.Errorf("expected default delay max to survive, got %v", config.Realtime.ReconnectDelayMax)
		}
		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("RealtimeURL", func(t *testing.T) {
		tc := []struct {
			name     string
			baseURL  string
			override string
			want     string
		}{
			{name: "http api path", baseURL: "http://localhost:5000/api", want: "ws://localhost:5000/ws"},
			{name: "https trailing slash", baseURL: "https://videos.example.com/api/", want: "wss://videos.example.com/ws"},
			{name: "no api suffix", baseURL: "https://videos.example.com", want: "wss://videos.example.com/ws"},
			{name: "explicit override", baseURL: "http://localhost:5000/api", override: "ws://push.local/socket", want: "ws://push.local/socket"},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				config.API.BaseURL = tt.baseURL
				config.Realtime.URL = tt.override

				got, err := config.RealtimeURL()
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.want {
					t.Errorf("RealtimeURL() = %s, want %s", got, tt.want)
				}
			})
		}
	})

	t.Run("Validate", func(t *testing.T) {
		config := DefaultConfig()
		config.API.BaseURL = ""
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}

		config = DefaultConfig()
		config.Uploads.MaxSizeMB = 0
		if err := config.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for zero max size, got %v", err)
		}
	})
}

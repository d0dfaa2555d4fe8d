package shared

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./incommon.db" {
			t.Errorf("expected database path ./incommon.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 8080 {
			t.Errorf("expected server port 8080, got %d", config.Server.Port)
		}
		if config.Upstream.Timeout.Duration != 10*time.Second {
			t.Errorf("expected upstream timeout 10s, got %s", config.Upstream.Timeout)
		}
		if config.Upstream.MaxRetries != 3 {
			t.Errorf("expected 3 retries, got %d", config.Upstream.MaxRetries)
		}
		if config.Session.MaxAge.Duration != 24*time.Hour {
			t.Errorf("expected session max age 24h, got %s", config.Session.MaxAge)
		}
		if config.Reference.Identity != "reference" {
			t.Errorf("expected reference identity, got %s", config.Reference.Identity)
		}
		if config.Storage.CacheDir != "./.spotify_caches" {
			t.Errorf("expected cache dir ./.spotify_caches, got %s", config.Storage.CacheDir)
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

	t.Run("LoadConfig keeps defaults for omitted sections", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 9090

[credentials.spotify]
client_id = "test_client_id"
client_secret = "test_secret"
redirect_uri = "http://localhost:9090"

[upstream]
timeout = "3s"
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if got := config.Server.Addr(); got != "0.0.0.0:9090" {
			t.Errorf("expected addr 0.0.0.0:9090, got %s", got)
		}
		if config.Upstream.Timeout.Duration != 3*time.Second {
			t.Errorf("expected timeout 3s, got %s", config.Upstream.Timeout)
		}
		if config.Upstream.MaxRetries != 3 {
			t.Errorf("expected default retries to survive, got %d", config.Upstream.MaxRetries)
		}
	})

	t.Run("LoadConfig rejects bad durations", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("[upstream]\ntimeout = \"soon\"\n"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected parse error for invalid duration")
		}
	})

	t.Run("ApplyEnv", func(t *testing.T) {
		t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
		t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
		t.Setenv("SPOTIFY_REDIRECT_URI", "http://example.test/")
		t.Setenv("SESSION_SECRET", "s3cr3t")
		t.Setenv("PORT", "5000")

		config := DefaultConfig()
		config.ApplyEnv()

		if config.Credentials.Spotify.ClientID != "env-id" {
			t.Errorf("expected env client id, got %s", config.Credentials.Spotify.ClientID)
		}
		if config.Credentials.Spotify.ClientSecret != "env-secret" {
			t.Errorf("expected env client secret, got %s", config.Credentials.Spotify.ClientSecret)
		}
		if config.Credentials.Spotify.RedirectURI != "http://example.test/" {
			t.Errorf("expected env redirect uri, got %s", config.Credentials.Spotify.RedirectURI)
		}
		if config.Session.Secret != "s3cr3t" {
			t.Errorf("expected env session secret, got %s", config.Session.Secret)
		}
		if config.Server.Port != 5000 {
			t.Errorf("expected env port 5000, got %d", config.Server.Port)
		}
	})

	t.Run("ApplyEnv ignores malformed port", func(t *testing.T) {
		t.Setenv("PORT", "eighty")
		config := DefaultConfig()
		config.ApplyEnv()
		if config.Server.Port != 8080 {
			t.Errorf("expected port to stay 8080, got %d", config.Server.Port)
		}
	})

	t.Run("LoadConfigOrDefault without file", func(t *testing.T) {
		config, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Server.Port == 0 {
			t.Error("expected defaults to be populated")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Credentials.Spotify.ClientID = "id"
		c.Credentials.Spotify.ClientSecret = "secret"
		c.Session.Secret = strings.Repeat("k", 32)
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing client id", mutate: func(c *Config) { c.Credentials.Spotify.ClientID = "" }, wantErr: ErrMissingCredentials},
		{name: "missing redirect", mutate: func(c *Config) { c.Credentials.Spotify.RedirectURI = "" }, wantErr: ErrMissingCredentials},
		{name: "short secret", mutate: func(c *Config) { c.Session.Secret = "short" }, wantErr: ErrInvalidConfig},
		{name: "no reference user", mutate: func(c *Config) { c.Reference.UserID = "" }, wantErr: ErrInvalidConfig},
		{name: "zero timeout", mutate: func(c *Config) { c.Upstream.Timeout.Duration = 0 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// A single Config value is built at startup and passed explicitly to every component.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Storage     StorageConfig     `toml:"storage"`
	Database    DatabaseConfig    `toml:"database"`
	Upstream    UpstreamConfig    `toml:"upstream"`
	Reference   ReferenceConfig   `toml:"reference"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
//
// AuthURL and TokenURL are empty in production and only set to point at a fake server.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AuthURL      string `toml:"auth_url"`
	TokenURL     string `toml:"token_url"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	CallbackPort int    `toml:"callback_port"`

	// RateLimit is the per-visitor request rate in requests per second.
	RateLimit     float64  `toml:"rate_limit"`
	RateBurst     int      `toml:"rate_burst"`
	PruneInterval Duration `toml:"prune_interval"`
}

// Addr returns the listen address for the web app.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig contains cookie session settings.
type SessionConfig struct {
	Secret     string   `toml:"secret"`
	CookieName string   `toml:"cookie_name"`
	MaxAge     Duration `toml:"max_age"`
	Secure     bool     `toml:"secure"`
}

// StorageConfig contains filesystem locations.
type StorageConfig struct {
	CacheDir string `toml:"cache_dir"`
	DataDir  string `toml:"data_dir"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// UpstreamConfig controls calls to the Spotify Web API.
type UpstreamConfig struct {
	APIBaseURL        string   `toml:"api_base_url"`
	Timeout           Duration `toml:"timeout"`
	MaxRetries        int      `toml:"max_retries"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// ReferenceConfig names the fixed account every visitor is compared against.
type ReferenceConfig struct {
	Identity    string `toml:"identity"`
	UserID      string `toml:"user_id"`
	DisplayName string `toml:"display_name"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps [time.Duration] so it can be written as "10s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults, and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.ApplyEnv()
	return config, nil
}

// LoadConfigOrDefault loads the file at path when it exists and otherwise falls back to [DefaultConfig] with environment overrides.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		config := DefaultConfig()
		config.ApplyEnv()
		return config, nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// ApplyEnv overrides credentials, port and session secret from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Credentials.Spotify.RedirectURI = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate reports configuration that would keep the web app from serving requests.
func (c *Config) Validate() error {
	var missing []string
	if c.Credentials.Spotify.ClientID == "" {
		missing = append(missing, "credentials.spotify.client_id")
	}
	if c.Credentials.Spotify.ClientSecret == "" {
		missing = append(missing, "credentials.spotify.client_secret")
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		missing = append(missing, "credentials.spotify.redirect_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingCredentials, missing)
	}

	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("%w: session.secret must be at least 32 bytes", ErrInvalidConfig)
	}
	if c.Reference.Identity == "" || c.Reference.UserID == "" {
		return fmt.Errorf("%w: reference.identity and reference.user_id are required", ErrInvalidConfig)
	}
	if c.Upstream.Timeout.Duration <= 0 {
		return fmt.Errorf("%w: upstream.timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

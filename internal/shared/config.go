package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// Environment variables that override values loaded from the config file.
const (
	EnvSpotifyClientID     = "HARMONY_SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "HARMONY_SPOTIFY_CLIENT_SECRET"
	EnvNATSURL             = "HARMONY_NATS_URL"
	EnvDatabasePath        = "HARMONY_DATABASE_PATH"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Chat        ChatConfig        `toml:"chat"`
	Matching    MatchingConfig    `toml:"matching"`
	Session     SessionConfig     `toml:"session"`
	Provider    ProviderConfig    `toml:"provider"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials used for the server-side token exchange.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// Validate returns a [ConfigError] naming the first missing credential.
func (s SpotifyConfig) Validate() error {
	if strings.TrimSpace(s.ClientID) == "" {
		return &ConfigError{Field: "credentials.spotify.client_id"}
	}
	if strings.TrimSpace(s.ClientSecret) == "" {
		return &ConfigError{Field: "credentials.spotify.client_secret"}
	}
	return nil
}

// OAuth2Config builds the [oauth2.Config] for the Spotify accounts service.
func (s SpotifyConfig) OAuth2Config(scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ChatConfig contains realtime chat settings.
//
// Transport is "memory" (single process) or "nats".
type ChatConfig struct {
	Transport        string `toml:"transport"`
	NATSURL          string `toml:"nats_url"`
	PageSize         int    `toml:"page_size"`
	MaxContentLength int    `toml:"max_content_length"`
}

// MatchingConfig holds the deployment's similarity threshold.
type MatchingConfig struct {
	Threshold float64 `toml:"threshold"`
}

// SessionConfig controls token caching.
type SessionConfig struct {
	RefreshBufferSeconds int `toml:"refresh_buffer_seconds"`
}

// RefreshBuffer returns the validity window a cached token must exceed.
func (s SessionConfig) RefreshBuffer() time.Duration {
	return time.Duration(s.RefreshBufferSeconds) * time.Second
}

// ProviderConfig controls the provider REST client.
type ProviderConfig struct {
	BaseURL           string  `toml:"base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	BreakerFailures   uint32  `toml:"breaker_failures"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep their defaults, and environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	ApplyEnv(config)
	return config, nil
}

// SaveConfig writes config as TOML to path.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
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

// LoadDotEnv loads KEY=value pairs from the given .env files into the process environment.
//
// Missing files are ignored; existing environment variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("%w: failed to load env file: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints in config from the environment.
func ApplyEnv(config *Config) {
	if v := os.Getenv(EnvSpotifyClientID); v != "" {
		config.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv(EnvSpotifyClientSecret); v != "" {
		config.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		config.Chat.NATSURL = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		config.Database.Path = v
	}
}

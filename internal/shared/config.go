package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Environment variables that override secrets loaded from config.toml.
const (
	EnvClientID     = "SOUNDSHARE_SPOTIFY_CLIENT_ID"
	EnvClientSecret = "SOUNDSHARE_SPOTIFY_CLIENT_SECRET"
	EnvRedirectURI  = "SOUNDSHARE_SPOTIFY_REDIRECT_URI"
	EnvDatastoreURL = "SOUNDSHARE_DATASTORE_URL"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Catalog     CatalogConfig     `toml:"catalog"`
	Database    DatabaseConfig    `toml:"database"`
	Datastore   DatastoreConfig   `toml:"datastore"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API client credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// CatalogConfig contains the authorization server and catalog API endpoints.
type CatalogConfig struct {
	APIURL            string  `toml:"api_url"`
	AuthURL           string  `toml:"auth_url"`
	TokenURL          string  `toml:"token_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	Market            string  `toml:"market"`
}

// DatabaseConfig contains settings for the local credential database.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// DatastoreConfig selects and locates the shared real-time datastore.
type DatastoreConfig struct {
	Driver    string `toml:"driver"`
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
}

// ServerConfig contains loopback HTTP server settings.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MetricsAddr string `toml:"metrics_addr"`
}

// LogConfig controls logger verbosity.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values are layered over [DefaultConfig] so a partial file keeps sensible defaults.
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

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path as TOML.
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

// ApplyEnv loads envFiles (missing files are ignored) and overlays the SOUNDSHARE_* variables onto config.
func (c *Config) ApplyEnv(envFiles ...string) error {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if v := os.Getenv(EnvClientID); v != "" {
		c.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv(EnvClientSecret); v != "" {
		c.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv(EnvRedirectURI); v != "" {
		c.Credentials.Spotify.RedirectURI = v
	}
	if v := os.Getenv(EnvDatastoreURL); v != "" {
		c.Datastore.URL = v
	}

	return nil
}

// Validate reports the first missing setting required to talk to the authorization server and datastore.
func (c *Config) Validate() error {
	switch {
	case c.Credentials.Spotify.ClientID == "":
		return fmt.Errorf("%w: credentials.spotify.client_id is required", ErrInvalidConfig)
	case c.Credentials.Spotify.ClientSecret == "":
		return fmt.Errorf("%w: credentials.spotify.client_secret is required", ErrInvalidConfig)
	case c.Credentials.Spotify.RedirectURI == "":
		return fmt.Errorf("%w: credentials.spotify.redirect_uri is required", ErrInvalidConfig)
	case c.Catalog.AuthURL == "" || c.Catalog.TokenURL == "":
		return fmt.Errorf("%w: catalog.auth_url and catalog.token_url are required", ErrInvalidConfig)
	}

	switch c.Datastore.Driver {
	case "memory":
	case "redis":
		if c.Datastore.URL == "" {
			return fmt.Errorf("%w: datastore.url is required for the redis driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown datastore.driver %q", ErrInvalidConfig, c.Datastore.Driver)
	}

	return nil
}

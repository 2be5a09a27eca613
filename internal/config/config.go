// Package config loads the CLI configuration file: named provider
// entries plus storage and refresh settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"latchkey/pkg/oauth"
)

// AppName is the directory name used for configuration, credential
// storage, and lock files.
const AppName = "latchkey"

// Config is the top-level configuration file.
type Config struct {
	// Providers maps a provider name (conventionally its domain, e.g.
	// "github.com") to its OAuth settings.
	Providers map[string]Provider `yaml:"providers"`

	// Storage selects the credential storage backend.
	Storage Storage `yaml:"storage,omitempty"`

	// Refresh tunes the refresh coordinator.
	Refresh Refresh `yaml:"refresh,omitempty"`
}

// Provider configures one OAuth provider. Either Preset names a
// built-in provider (github, google, microsoft, gitlab) or the
// endpoints are given explicitly.
type Provider struct {
	Preset   string `yaml:"preset,omitempty"`
	ClientID string `yaml:"client_id"`
	Scope    string `yaml:"scope,omitempty"`

	// Tenant applies to the microsoft preset; empty means "common".
	Tenant string `yaml:"tenant,omitempty"`

	// BaseURL applies to the gitlab preset for self-hosted instances.
	BaseURL string `yaml:"base_url,omitempty"`

	AuthorizationEndpoint       string `yaml:"authorization_endpoint,omitempty"`
	TokenEndpoint               string `yaml:"token_endpoint,omitempty"`
	RedirectURI                 string `yaml:"redirect_uri,omitempty"`
	DeviceAuthorizationEndpoint string `yaml:"device_authorization_endpoint,omitempty"`
}

// Storage selects and configures the credential store.
type Storage struct {
	// Backend is "file" (default), "memory", or "redis".
	Backend string `yaml:"backend,omitempty"`

	Redis RedisStorage `yaml:"redis,omitempty"`
}

// RedisStorage configures the redis backend.
type RedisStorage struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Refresh tunes the refresh coordinator.
type Refresh struct {
	// Threshold is the lifetime fraction after which tokens are
	// refreshed proactively. Zero means refresh only on expiry.
	Threshold float64 `yaml:"threshold,omitempty"`

	// DisableFileLock turns off cross-process refresh coordination.
	DisableFileLock bool `yaml:"disable_file_lock,omitempty"`
}

// DefaultPath returns the default config file location,
// $XDG_CONFIG_HOME/latchkey/config.yaml.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName, "config.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", AppName, "config.yaml"), nil
}

// Load reads and validates the config at path. A missing file yields an
// empty config rather than an error so commands can fall back to flags.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks every provider entry resolves to a usable OAuth
// configuration.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		if _, err := p.OAuthConfig(); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}
	if c.Refresh.Threshold < 0 || c.Refresh.Threshold > 1 {
		return fmt.Errorf("refresh threshold %v out of range [0, 1]", c.Refresh.Threshold)
	}
	switch c.Storage.Backend {
	case "", "file", "memory", "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "redis" && c.Storage.Redis.Addr == "" {
		return errors.New("redis storage requires an addr")
	}
	return nil
}

// Provider returns the named provider entry.
func (c *Config) Provider(name string) (Provider, error) {
	p, ok := c.Providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("provider %q not configured", name)
	}
	return p, nil
}

// OAuthConfig resolves the provider entry to an oauth.Config, applying
// the preset when one is named and then any explicit endpoint
// overrides.
func (p Provider) OAuthConfig() (oauth.Config, error) {
	if p.ClientID == "" {
		return oauth.Config{}, errors.New("client_id is required")
	}

	var cfg oauth.Config
	switch p.Preset {
	case "github":
		cfg = oauth.GitHubConfig(p.ClientID, p.Scope)
	case "google":
		cfg = oauth.GoogleConfig(p.ClientID, p.Scope)
	case "microsoft":
		tenant := p.Tenant
		if tenant == "" {
			tenant = "common"
		}
		cfg = oauth.MicrosoftConfig(p.ClientID, tenant, p.Scope)
	case "gitlab":
		cfg = oauth.GitLabConfig(p.ClientID, p.Scope, p.BaseURL)
	case "":
		cfg = oauth.Config{
			ClientID: p.ClientID,
			Scope:    p.Scope,
		}
	default:
		return oauth.Config{}, fmt.Errorf("unknown preset %q", p.Preset)
	}

	if p.AuthorizationEndpoint != "" {
		cfg.AuthorizationEndpoint = p.AuthorizationEndpoint
	}
	if p.TokenEndpoint != "" {
		cfg.TokenEndpoint = p.TokenEndpoint
	}
	if p.RedirectURI != "" {
		cfg.RedirectURI = p.RedirectURI
	}
	if p.DeviceAuthorizationEndpoint != "" {
		cfg.DeviceAuthorizationEndpoint = p.DeviceAuthorizationEndpoint
	}

	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return oauth.Config{}, errors.New("authorization_endpoint and token_endpoint are required without a preset")
	}

	return cfg, nil
}

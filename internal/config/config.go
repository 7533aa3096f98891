// Package config loads the server configuration from a YAML file.
//
// The deployment token is deliberately not part of the file: it is read
// from the VERCEL_TOKEN environment variable only, so config files can
// be committed without leaking credentials.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 5000
	DefaultProviderURL    = "https://api.vercel.com"
	DefaultProviderDomain = "vercel.app"
	DefaultMaxUploadBytes = 10 << 20 // 10 MB

	// TokenEnvVar names the environment variable holding the provider token.
	TokenEnvVar = "VERCEL_TOKEN"
)

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProviderConfig configures the deployment provider endpoint
type ProviderConfig struct {
	APIURL string `yaml:"api_url"`
	Domain string `yaml:"domain"`
}

// LimitsConfig configures request size limits
type LimitsConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: DefaultHost, Port: DefaultPort},
		Provider: ProviderConfig{APIURL: DefaultProviderURL, Domain: DefaultProviderDomain},
		Limits:   LimitsConfig{MaxUploadBytes: DefaultMaxUploadBytes},
	}
}

// Load reads and validates the configuration from a YAML file,
// applying defaults for anything left unset.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	if errors := config.Validate(); len(errors) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n%s", strings.Join(errors, "\n"))
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Provider.APIURL == "" {
		c.Provider.APIURL = DefaultProviderURL
	}
	if c.Provider.Domain == "" {
		c.Provider.Domain = DefaultProviderDomain
	}
	if c.Limits.MaxUploadBytes == 0 {
		c.Limits.MaxUploadBytes = DefaultMaxUploadBytes
	}
}

// Validate checks the configuration and returns a list of problems.
func (c *Config) Validate() []string {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("  - server: port must be in 1..65535, got %d", c.Server.Port))
	}

	if !strings.HasPrefix(c.Provider.APIURL, "http://") && !strings.HasPrefix(c.Provider.APIURL, "https://") {
		errors = append(errors, fmt.Sprintf("  - provider: api_url must be an http(s) URL, got '%s'", c.Provider.APIURL))
	}

	if strings.Contains(c.Provider.Domain, "/") || c.Provider.Domain == "" {
		errors = append(errors, fmt.Sprintf("  - provider: domain must be a bare hostname, got '%s'", c.Provider.Domain))
	}

	if c.Limits.MaxUploadBytes < 0 {
		errors = append(errors, fmt.Sprintf("  - limits: max_upload_bytes must be positive, got %d", c.Limits.MaxUploadBytes))
	}

	return errors
}

// Token returns the provider deployment token from the environment.
// An empty result is not an error here: its absence is reported as a
// server configuration error per request, not at startup.
func Token() string {
	return os.Getenv(TokenEnvVar)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvGithubToken is the environment variable name for the GitHub API token
	EnvGithubToken = "ISSUEFINDER_GITHUB_TOKEN"

	// EnvGithubTokenFallback is read when EnvGithubToken is not set
	EnvGithubTokenFallback = "GITHUB_TOKEN"

	envPrefix = "ISSUEFINDER"
)

// Repository lookup modes
const (
	RepoLookupREST    = "rest"
	RepoLookupGraphQL = "graphql"
)

// Config represents the application configuration
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github"`
	Database DatabaseConfig `mapstructure:"database"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Health   HealthConfig   `mapstructure:"health"`
	Log      LogConfig      `mapstructure:"log"`
}

// GitHubConfig configures API access
type GitHubConfig struct {
	// Token is optional; without one searches run at the anonymous rate limit
	Token       string        `mapstructure:"token"`
	BaseURL     string        `mapstructure:"base_url"`
	RepoLookup  string        `mapstructure:"repo_lookup"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// DatabaseConfig selects the local persistence backend
type DatabaseConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// FeedConfig tunes the issue feed
type FeedConfig struct {
	PerPage  int           `mapstructure:"per_page"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// HealthConfig sizes the repository health cache and its backfill
type HealthConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	BackfillLimit int           `mapstructure:"backfill_limit"`
	Workers       int           `mapstructure:"workers"`
	Capacity      int           `mapstructure:"capacity"`
}

// LogConfig selects the log level and the text or json format
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			BaseURL:     "https://api.github.com/",
			RepoLookup:  RepoLookupREST,
			HTTPTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Backend: "sqlite",
			Path:    "open_issue_finder.db",
		},
		Feed: FeedConfig{
			PerPage:  30,
			Debounce: 300 * time.Millisecond,
		},
		Health: HealthConfig{
			TTL:           12 * time.Hour,
			BackfillLimit: 20,
			Workers:       5,
			Capacity:      5000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {
	for key, value := range flatten(DefaultConfig()) {
		v.SetDefault(key, value)
	}
}

// flatten maps a config to dotted viper keys
func flatten(cfg *Config) map[string]any {
	return map[string]any{
		"github.token":          cfg.GitHub.Token,
		"github.base_url":       cfg.GitHub.BaseURL,
		"github.repo_lookup":    cfg.GitHub.RepoLookup,
		"github.http_timeout":   cfg.GitHub.HTTPTimeout.String(),
		"database.backend":      cfg.Database.Backend,
		"database.path":         cfg.Database.Path,
		"feed.per_page":         cfg.Feed.PerPage,
		"feed.debounce":         cfg.Feed.Debounce.String(),
		"health.ttl":            cfg.Health.TTL.String(),
		"health.backfill_limit": cfg.Health.BackfillLimit,
		"health.workers":        cfg.Health.Workers,
		"health.capacity":       cfg.Health.Capacity,
		"log.level":             cfg.Log.Level,
		"log.format":            cfg.Log.Format,
	}
}

// LoadConfig loads the configuration from a TOML file. A missing file yields
// the defaults. Environment variables prefixed with ISSUEFINDER_ override file
// values, and a .env file in the working directory is loaded first.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Check for GitHub token in environment variables
	if envToken := os.Getenv(EnvGithubToken); envToken != "" {
		config.GitHub.Token = envToken
	} else if config.GitHub.Token == "" {
		config.GitHub.Token = os.Getenv(EnvGithubTokenFallback)
	}

	// Make database path absolute if it's relative
	if config.Database.Path != "" && !filepath.IsAbs(config.Database.Path) {
		configDir := filepath.Dir(path)
		config.Database.Path = filepath.Join(configDir, config.Database.Path)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.GitHub.RepoLookup {
	case RepoLookupREST, RepoLookupGraphQL:
	default:
		return fmt.Errorf("invalid github.repo_lookup %q: want %s or %s", c.GitHub.RepoLookup, RepoLookupREST, RepoLookupGraphQL)
	}
	switch c.Database.Backend {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("invalid database.backend %q: want sqlite or bolt", c.Database.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format %q: want text or json", c.Log.Format)
	}
	return nil
}

// SaveConfig saves the configuration to a TOML file
func SaveConfig(config *Config, path string) error {
	v := viper.New()
	v.SetConfigType("toml")
	for key, value := range flatten(config) {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist
func CreateDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}
	return SaveConfig(DefaultConfig(), path)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wesm/open-issue-finder/config"
	"github.com/wesm/open-issue-finder/internal/api"
	"github.com/wesm/open-issue-finder/internal/db"
	"github.com/wesm/open-issue-finder/internal/health"
	"github.com/wesm/open-issue-finder/internal/logger"
	"github.com/wesm/open-issue-finder/internal/store"
)

// Version is set at build time
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(dir, "open-issue-finder", "config.toml")
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "issuefinder",
		Short:         "Find open GitHub issues worth contributing to",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to configuration file")

	cfgPath := func() string { return configPath }
	root.AddCommand(
		newSearchCmd(cfgPath),
		newOpenCmd(cfgPath),
		newSavedCmd(cfgPath),
		newSearchesCmd(cfgPath),
		newHealthCmd(cfgPath),
		newConfigCmd(cfgPath),
	)
	return root
}

// app holds the services a command needs
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	kv     db.KV
	store  *store.Store
	github *api.GitHubClient
	health *health.Cache
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	kv, err := db.Open(cfg.Database.Backend, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	st, err := store.New(kv, store.WithLogger(log))
	if err != nil {
		kv.Close()
		return nil, err
	}

	client, err := newGitHubClient(cfg, log)
	if err != nil {
		st.Close()
		kv.Close()
		return nil, err
	}

	cache, err := health.New(repoFetcher(cfg, client),
		health.WithTTL(cfg.Health.TTL),
		health.WithBackfillLimit(cfg.Health.BackfillLimit),
		health.WithWorkers(cfg.Health.Workers),
		health.WithCapacity(cfg.Health.Capacity),
		health.WithPersister(st),
		health.WithLogger(log),
	)
	if err != nil {
		st.Close()
		kv.Close()
		return nil, fmt.Errorf("failed to create health cache: %w", err)
	}

	return &app{cfg: cfg, logger: log, kv: kv, store: st, github: client, health: cache}, nil
}

func newGitHubClient(cfg *config.Config, log *slog.Logger) (*api.GitHubClient, error) {
	opts := []api.Option{
		api.WithHTTPClient(httpClient(cfg)),
		api.WithLogger(log),
	}
	if cfg.GitHub.BaseURL != "" {
		opts = append(opts, api.WithBaseURL(cfg.GitHub.BaseURL))
	}
	return api.NewGitHubClient(cfg.GitHub.Token, opts...)
}

func httpClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.GitHub.HTTPTimeout}
}

// repoFetcher picks the repository lookup used for health scoring. GraphQL
// needs a token, so REST is used without one.
func repoFetcher(cfg *config.Config, rest *api.GitHubClient) health.RepoFetcher {
	if cfg.GitHub.RepoLookup != config.RepoLookupGraphQL || cfg.GitHub.Token == "" {
		return rest
	}
	return api.NewGraphQLClient(cfg.GitHub.Token, graphQLEndpoint(cfg.GitHub.BaseURL), httpClient(cfg))
}

// graphQLEndpoint derives the GraphQL URL for a GitHub Enterprise REST root.
// The public API returns "" so the client default is used.
func graphQLEndpoint(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" || base == "https://api.github.com" {
		return ""
	}
	return strings.TrimSuffix(base, "/v3") + "/graphql"
}

// Close releases the cache, store and database in reverse order of opening
func (a *app) Close() {
	a.health.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

func newConfigCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file if it doesn't exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configPath()
			if err := config.CreateDefaultConfig(path); err != nil {
				return fmt.Errorf("failed to create default configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration at %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "GitHub token can be provided via the %s or %s environment variables\n",
				config.EnvGithubToken, config.EnvGithubTokenFallback)
			return nil
		},
	})
	return cmd
}

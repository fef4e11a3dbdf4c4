package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/open-issue-finder/internal/models"
)

func newHealthCmd(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health <owner/repo>",
		Short: "Score a repository's maintenance health",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Trim(args[0], "/")
			if strings.Count(name, "/") != 1 {
				return fmt.Errorf("invalid repository %q: want owner/repo", args[0])
			}

			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			// a one-issue backfill reuses the cache TTL and persistence
			repoURL := strings.TrimRight(a.cfg.GitHub.BaseURL, "/") + "/repos/" + name
			a.health.Backfill(cmd.Context(), []*models.Issue{{RepositoryURL: repoURL}})

			entry, ok := a.health.Entry(name)
			if !ok {
				return fmt.Errorf("failed to look up repository %s", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.2f\t(scored %s)\n", entry.FullName, entry.Score, entry.FetchedAt.Local().Format(time.RFC822))
			return nil
		},
	}
}

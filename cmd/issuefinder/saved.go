package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/open-issue-finder/internal/models"
	"github.com/wesm/open-issue-finder/internal/render"
)

func newSavedCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saved",
		Short: "Manage bookmarked issues",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved issues, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()
			printSaved(cmd.OutOrStdout(), a.store.SavedIssues())
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <file|->",
		Short: "Save issues from JSON as printed by search --json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issues, err := readIssues(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, issue := range issues {
				if err := a.store.SaveIssue(issue); err != nil {
					return fmt.Errorf("failed to save issue %d: %w", issue.ID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d issues\n", len(issues))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <issue-id>",
		Short: "Remove a saved issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid issue id %q: %w", args[0], err)
			}
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.store.IsSaved(id) {
				fmt.Fprintf(cmd.OutOrStdout(), "Issue %d is not saved\n", id)
				return nil
			}
			if err := a.store.RemoveIssue(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed issue %d\n", id)
			return nil
		},
	}

	var limit int
	find := &cobra.Command{
		Use:   "find <text>",
		Short: "Full-text search over saved issues",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			found, err := a.store.SearchSaved(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			printSaved(cmd.OutOrStdout(), found)
			return nil
		},
	}
	find.Flags().IntVar(&limit, "limit", 20, "maximum number of results")

	cmd.AddCommand(list, add, remove, find)
	return cmd
}

func printSaved(w io.Writer, saved []models.SavedIssue) {
	issues := make([]*models.Issue, len(saved))
	for i := range saved {
		issues[i] = &saved[i].Issue
	}
	render.New(w, nil, nil).Issues(issues)
}

// readIssues decodes a JSON issue or array of issues from path, or stdin for "-"
func readIssues(stdin io.Reader, path string) ([]*models.Issue, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read issues: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var issue models.Issue
		if err := json.Unmarshal(data, &issue); err != nil {
			return nil, fmt.Errorf("failed to parse issue: %w", err)
		}
		return []*models.Issue{&issue}, nil
	}

	var issues []*models.Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("failed to parse issues: %w", err)
	}
	for i, issue := range issues {
		if issue == nil {
			return nil, fmt.Errorf("failed to parse issues: entry %d is null", i)
		}
	}
	return issues, nil
}

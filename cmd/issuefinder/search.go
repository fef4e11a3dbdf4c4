package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/open-issue-finder/internal/feed"
	"github.com/wesm/open-issue-finder/internal/logger"
	"github.com/wesm/open-issue-finder/internal/models"
	"github.com/wesm/open-issue-finder/internal/query"
	"github.com/wesm/open-issue-finder/internal/render"
)

// shareBase is the URL that shareable search links are built on
const shareBase = "issuefinder://search"

// filterFlags binds the search filter flags shared by several commands
type filterFlags struct {
	query    string
	language string
	label    string
	sort     string
	order    string
	state    string
	perPage  int
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.query, "query", "q", "", "free-text search query")
	flags.StringVarP(&f.language, "language", "l", "", "repository language")
	flags.StringVar(&f.label, "label", "", "label category, e.g. "+strings.Join(query.KnownLabels(), ", "))
	flags.StringVar(&f.sort, "sort", string(models.SortCreated), "created, comments, updated or health")
	flags.StringVar(&f.order, "order", string(models.OrderDesc), "asc or desc")
	flags.StringVar(&f.state, "state", string(models.StateOpen), "open, closed or all")
	flags.IntVar(&f.perPage, "per-page", 0, "results per page (default from config)")
}

func (f *filterFlags) filters(defaultPerPage int) models.SearchFilters {
	perPage := f.perPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return models.SearchFilters{
		Query:    f.query,
		Language: f.language,
		Label:    f.label,
		Sort:     models.Sort(f.sort),
		Order:    models.Order(f.order),
		State:    models.State(f.state),
		PerPage:  perPage,
	}
}

// outputOptions controls how search results are printed
type outputOptions struct {
	pages      int
	jsonOutput bool
	share      bool
	health     bool
}

func (o *outputOptions) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&o.pages, "pages", 1, "number of result pages to load")
	flags.BoolVar(&o.jsonOutput, "json", false, "print issues as JSON")
	flags.BoolVar(&o.share, "share", false, "print a shareable URL for the search")
	flags.BoolVar(&o.health, "health", false, "score repository health even when not sorting by it")
}

func newSearchCmd(configPath func() string) *cobra.Command {
	var ff filterFlags
	var out outputOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search open issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runSearch(cmd.Context(), cmd.OutOrStdout(), ff.filters(a.cfg.Feed.PerPage), out)
		},
	}
	ff.bind(cmd)
	out.bind(cmd)
	return cmd
}

func newOpenCmd(configPath func() string) *cobra.Command {
	var out outputOptions

	cmd := &cobra.Command{
		Use:   "open <share-url>",
		Short: "Run the search encoded in a shareable URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := query.ParseShareURL(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.runSearch(cmd.Context(), cmd.OutOrStdout(), filters, out)
		},
	}
	out.bind(cmd)
	return cmd
}

// runSearch drives a feed controller through the requested number of pages
// and prints the result
func (a *app) runSearch(ctx context.Context, w io.Writer, filters models.SearchFilters, out outputOptions) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Command: "search", Query: logger.Ptr(filters.Query)})

	opts := []feed.Option{
		feed.WithDebounce(a.cfg.Feed.Debounce),
		feed.WithLogger(a.logger),
	}
	if out.health || filters.Sort == models.SortHealth {
		opts = append(opts, feed.WithHealth(a.health))
	}
	ctrl := feed.New(a.github, opts...)
	defer ctrl.Close()

	stop := context.AfterFunc(ctx, ctrl.Close)
	defer stop()

	a.logger.DebugContext(ctx, "running search", "label", filters.Label, "sort", filters.Sort, "pages", out.pages)
	ctrl.SetFilters(filters)
	ctrl.Wait()
	for page := 1; page < out.pages; page++ {
		if !ctrl.LoadMore() {
			break
		}
		ctrl.Wait()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	state := ctrl.State()
	if state.Error != "" {
		return errors.New(state.Error)
	}

	issues := ctrl.DisplayIssues()
	if out.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(issues); err != nil {
			return fmt.Errorf("failed to encode issues: %w", err)
		}
	} else {
		var score render.ScoreFunc
		if out.health || filters.Sort == models.SortHealth {
			score = ctrl.Score
		}
		r := render.New(w, nil, score)
		r.Issues(issues)
		if state.HasMore {
			fmt.Fprintf(w, "\nShowing %d issues (page %d). Use --pages to load more.\n", len(issues), state.Page)
		}
	}

	if out.share {
		link, err := query.ShareURL(shareBase, filters)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, link)
	}
	return nil
}

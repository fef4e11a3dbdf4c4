package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/open-issue-finder/internal/logger"
	"github.com/wesm/open-issue-finder/internal/query"
	"github.com/wesm/open-issue-finder/internal/render"
)

func newSearchesCmd(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "searches",
		Short: "Manage saved searches",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved searches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()
			render.New(cmd.OutOrStdout(), nil, nil).Searches(a.store.SavedSearches())
			return nil
		},
	}

	var ff filterFlags
	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Save a named search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			name := strings.Join(args, " ")
			s, err := a.store.CreateSearch(name, ff.filters(a.cfg.Feed.PerPage))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved search %q as %s\n", s.Name, s.ID)
			return nil
		},
	}
	ff.bind(save)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.store.GetSearch(args[0]); !ok {
				return fmt.Errorf("saved search %s not found", args[0])
			}
			if err := a.store.DeleteSearch(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted saved search %s\n", args[0])
			return nil
		},
	}

	shareURL := &cobra.Command{
		Use:   "url <id>",
		Short: "Print a shareable URL for a saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			s, ok := a.store.GetSearch(args[0])
			if !ok {
				return fmt.Errorf("saved search %s not found", args[0])
			}
			link, err := query.ShareURL(shareBase, s.Filters)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	var out outputOptions
	run := &cobra.Command{
		Use:   "run <id>",
		Short: "Run a saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			s, ok := a.store.GetSearch(args[0])
			if !ok {
				return fmt.Errorf("saved search %s not found", args[0])
			}
			ctx := logger.WithLogFields(cmd.Context(), logger.LogFields{SearchID: s.ID})
			return a.runSearch(ctx, cmd.OutOrStdout(), s.Filters, out)
		},
	}
	out.bind(run)

	cmd.AddCommand(list, save, del, shareURL, run)
	return cmd
}

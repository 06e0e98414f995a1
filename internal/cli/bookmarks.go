package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

// NewListCommand prints the caller's bookmarks, newest first, or the ones
// matching --search, best match first.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List bookmarks, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient(rootOpts)
			if err != nil {
				return err
			}
			engine := c.engine()
			defer engine.Close()

			if err := engine.Resync(cmd.Context()); err != nil {
				return err
			}
			return newPrinter(rootOpts, cmd).bookmarks(domain.Search(query, engine.Snapshot()))
		},
	}

	cmd.Flags().StringVarP(&query, "search", "s", "", "only show bookmarks whose title or host match")
	return cmd
}

// NewAddCommand creates one bookmark. The URL is normalized first, so an
// invalid one never reaches the server.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a bookmark",
		Long: `Add a bookmark. A URL without an http(s) scheme gets https://; an empty
title falls back to the URL.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient(rootOpts)
			if err != nil {
				return err
			}
			engine := c.engine()
			defer engine.Close()

			row, err := engine.AddBookmark(cmd.Context(), args[0], title)
			if err != nil {
				return err
			}

			out := newPrinter(rootOpts, cmd)
			if out.json() {
				return out.encode(row)
			}
			out.linef("added %s  %s", row.ID, row.URL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "bookmark title (default: the URL)")
	return cmd
}

type removeResult struct {
	ID      string `json:"id"`
	Removed bool   `json:"removed"`
}

// NewRemoveCommand deletes bookmarks by id. Ids that are not in the
// caller's collection are reported and skipped.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete bookmarks",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient(rootOpts)
			if err != nil {
				return err
			}
			engine := c.engine()
			defer engine.Close()

			if err := engine.Resync(cmd.Context()); err != nil {
				return err
			}

			out := newPrinter(rootOpts, cmd)
			results := make([]removeResult, 0, len(args))
			var errs []error
			for _, id := range args {
				id = strings.TrimSpace(id)
				if !engine.Contains(id) {
					results = append(results, removeResult{ID: id})
					if !out.json() {
						out.linef("no bookmark %s", id)
					}
					continue
				}
				if err := engine.DeleteBookmark(cmd.Context(), id); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				// A failed delete resyncs; the row may be back.
				removed := !engine.Contains(id)
				results = append(results, removeResult{ID: id, Removed: removed})
				if !out.json() && removed {
					out.linef("removed %s", id)
				}
			}

			if out.json() {
				if err := out.encode(results); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
}

// titleOrURL is what text output shows for a row.
func titleOrURL(b domain.Bookmark) string {
	if b.Title != "" {
		return b.Title
	}
	return b.URL
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/markd/internal/sources/homepage"
)

type importResult struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed,omitempty"`
	DryRun  bool     `json:"dry_run"`
}

// NewImportCommand bulk-creates bookmarks from a Homepage dashboard file
// (services.yaml or bookmarks.yaml). URLs already in the collection are
// skipped, so running it twice is harmless.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import bookmarks from a Homepage YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			drafts, err := homepage.Load(args[0])
			if err != nil {
				return err
			}

			c, err := loadClient(rootOpts)
			if err != nil {
				return err
			}
			engine := c.engine()
			defer engine.Close()

			if err := engine.Resync(cmd.Context()); err != nil {
				return err
			}
			known := make(map[string]struct{}, engine.Len())
			for _, b := range engine.Snapshot() {
				known[b.URL] = struct{}{}
			}

			out := newPrinter(rootOpts, cmd)
			res := importResult{DryRun: dryRun}
			var errs []error
			for _, d := range drafts {
				if _, ok := known[d.URL]; ok {
					res.Skipped++
					continue
				}
				if dryRun {
					res.Added++
					if !out.json() {
						out.linef("would add  %s  %s", d.Title, d.URL)
					}
					continue
				}
				row, err := engine.AddBookmark(cmd.Context(), d.URL, d.Title)
				if err != nil {
					res.Failed = append(res.Failed, d.URL)
					errs = append(errs, fmt.Errorf("%s: %w", d.URL, err))
					continue
				}
				known[row.URL] = struct{}{}
				res.Added++
				if !out.json() {
					out.linef("added %s  %s", row.ID, row.URL)
				}
			}

			if out.json() {
				if err := out.encode(res); err != nil {
					return err
				}
			} else {
				out.linef("%d added, %d skipped, %d failed", res.Added, res.Skipped, len(res.Failed))
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be added without writing")
	return cmd
}

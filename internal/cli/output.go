package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

// printer renders command output as text or JSON. Safe for concurrent use:
// watch renders from feed callbacks.
type printer struct {
	mu     sync.Mutex
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) *printer {
	return &printer{format: opts.Format, w: cmd.OutOrStdout()}
}

func (p *printer) json() bool { return p.format == "json" }

// encode writes v as one JSON line.
func (p *printer) encode(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.NewEncoder(p.w).Encode(v)
}

func (p *printer) linef(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

// bookmarks renders rows as an aligned table, or as a JSON array.
func (p *printer) bookmarks(rows []domain.Bookmark) error {
	if p.json() {
		if rows == nil {
			rows = []domain.Bookmark{}
		}
		return p.encode(rows)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	writeTable(p.w, rows)
	return nil
}

func writeTable(w io.Writer, rows []domain.Bookmark) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tADDED\tTITLE\tURL")
	for _, b := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			b.ID, b.CreatedAt.Local().Format(time.DateTime), b.Title, b.URL)
	}
	_ = tw.Flush()
}

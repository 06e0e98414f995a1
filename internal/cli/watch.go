package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/reconcile"
)

type watchFrame struct {
	State     domain.ConnectionState `json:"state"`
	Label     string                 `json:"label"`
	Count     int                    `json:"count"`
	Bookmarks []domain.Bookmark      `json:"bookmarks"`
}

// NewWatchCommand keeps a live session open and redraws the collection
// and the connection indicator on every change until interrupted.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow bookmarks live",
		Long: `Open a live session: the collection is loaded, then kept in sync with
the change feed. The indicator reads live, sync... or offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := loadClient(rootOpts)
			if err != nil {
				return err
			}
			s, err := c.session(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			v := &watchView{out: newPrinter(rootOpts, cmd), session: s}
			s.Engine().OnChange(func([]domain.Bookmark) { v.render() })
			s.Tracker().OnTransition(func(_, _ domain.ConnectionState) { v.render() })
			v.render()

			<-ctx.Done()
			return nil
		},
	}
}

// watchView renders the latest state. Callbacks arrive from the feed and
// resync goroutines in any order, so each render reads the current state
// instead of trusting its trigger's arguments.
type watchView struct {
	mu      sync.Mutex
	out     *printer
	session *reconcile.Session
	last    string
}

func (v *watchView) render() {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := v.session.Tracker().State()
	rows := v.session.Engine().Snapshot()

	if v.out.json() {
		if rows == nil {
			rows = []domain.Bookmark{}
		}
		_ = v.out.encode(watchFrame{
			State:     state,
			Label:     state.Label(),
			Count:     len(rows),
			Bookmarks: rows,
		})
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %d bookmark%s", state.Label(), len(rows), plural(len(rows)))
	for _, row := range rows {
		fmt.Fprintf(&b, "\n  %s  %s", titleOrURL(row), row.URL)
	}
	frame := b.String()
	// Identical frames happen when a resync finds nothing new.
	if frame == v.last {
		return
	}
	v.last = frame
	v.out.linef("%s", frame)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

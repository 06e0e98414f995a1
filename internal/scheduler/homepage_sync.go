package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/sources/homepage"
)

// BookmarkWriter is the part of the store a Homepage sync writes through.
type BookmarkWriter interface {
	ListByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error)
	Create(ctx context.Context, rawURL, title, owner string) (domain.Bookmark, error)
}

// HomepageSync periodically imports a Homepage dashboard file into one
// owner's collection. It only adds: URLs already present are left alone
// and rows are never deleted, so bookmarks removed by hand stay removed
// only until the file lists them again.
//
// Rows go through the store, so every connected client sees them arrive
// on its feed.
type HomepageSync struct {
	path     string
	owner    string
	store    BookmarkWriter
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewHomepageSync creates a sync of path into owner. interval <= 0 imports
// once at Start only.
func NewHomepageSync(path, owner string, store BookmarkWriter, log logger.Logger, interval time.Duration) *HomepageSync {
	if log == nil {
		log = logger.Nop()
	}
	return &HomepageSync{
		path:     path,
		owner:    owner,
		store:    store,
		logger:   log.With(logger.Owner(owner), logger.String("file", path)),
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start imports immediately and fails if that first import does, so a
// misconfigured path is caught at boot. Later failures are only logged.
func (h *HomepageSync) Start(ctx context.Context) error {
	if _, err := h.Sync(ctx); err != nil {
		close(h.done)
		return fmt.Errorf("initial homepage import failed: %w", err)
	}

	go func() {
		defer close(h.done)
		if h.interval <= 0 {
			return
		}
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := h.Sync(ctx); err != nil && ctx.Err() == nil {
					h.logger.Error("homepage import failed", logger.Error(err))
				}
			case <-h.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop ends the loop and waits for it.
func (h *HomepageSync) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.done
}

// Sync runs one import and returns how many rows it created.
func (h *HomepageSync) Sync(ctx context.Context) (int, error) {
	drafts, err := homepage.Load(h.path)
	if err != nil {
		return 0, err
	}

	existing, err := h.store.ListByOwner(ctx, h.owner)
	if err != nil {
		return 0, fmt.Errorf("failed to list existing bookmarks: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, b := range existing {
		known[b.URL] = true
	}

	added := 0
	for _, d := range drafts {
		if known[d.URL] {
			continue
		}
		if _, err := h.store.Create(ctx, d.URL, d.Title, h.owner); err != nil {
			return added, fmt.Errorf("failed to create %s: %w", d.URL, err)
		}
		known[d.URL] = true
		added++
	}

	if added > 0 {
		h.logger.Info("imported bookmarks from homepage",
			logger.Int("added", added),
			logger.Int("listed", len(drafts)))
	} else {
		h.logger.Debug("homepage file has nothing new", logger.Int("listed", len(drafts)))
	}
	return added, nil
}

// Package reconcile keeps a client's ordered view of one owner's bookmarks
// consistent with the server while local mutations and remote change
// notifications arrive in any order.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/index"
	"github.com/MrSnakeDoc/markd/internal/logger"
)

var (
	// ErrClosed is returned by mutations on an engine whose session ended.
	ErrClosed = errors.New("session closed")
	// ErrForeignRow is wrapped when the repository answers a create with a
	// row of another owner.
	ErrForeignRow = errors.New("row belongs to another owner")
)

// Repository is the row store as seen from the client.
type Repository interface {
	Create(ctx context.Context, url, title, owner string) (domain.Bookmark, error)
	Delete(ctx context.Context, id, owner string) error
	// ListByOwner returns the owner's rows, newest first.
	ListByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error)
}

// Engine owns the canonical collection of one owner. All mutations, local
// or remote, go through one short critical section; repository round trips
// run with the lock released.
type Engine struct {
	owner  string
	repo   Repository
	logger logger.Logger

	mu     sync.RWMutex
	coll   *index.Collection
	closed bool

	// While a resync is in flight, applied changes are journaled and
	// replayed over the fresh list so they are not lost to it.
	resyncing int
	journal   []domain.Event

	obsMu     sync.Mutex
	observers []func([]domain.Bookmark)
}

// NewEngine returns an engine with an empty collection for owner.
func NewEngine(owner string, repo Repository, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		owner:  owner,
		repo:   repo,
		logger: log,
		coll:   index.NewCollection(owner),
	}
}

// Owner returns the owner the engine is bound to.
func (e *Engine) Owner() string { return e.owner }

// Snapshot returns a copy of the collection, newest first.
func (e *Engine) Snapshot() []domain.Bookmark {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.coll.Snapshot()
}

// Len returns the collection size.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.coll.Len()
}

// Contains reports whether a bookmark with id is in the collection.
func (e *Engine) Contains(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.coll.Has(id)
}

// OnChange registers fn to receive a fresh snapshot after every applied
// mutation. fn runs outside the engine lock.
func (e *Engine) OnChange(fn func([]domain.Bookmark)) {
	e.obsMu.Lock()
	e.observers = append(e.observers, fn)
	e.obsMu.Unlock()
}

// Close stops the engine from accepting further changes.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.journal = nil
	e.mu.Unlock()
}

// AddBookmark validates and normalizes the input, creates the row and
// inserts the authoritative copy at its sorted position. If the feed
// already delivered the same row, nothing is inserted twice.
//
// An invalid URL returns domain.ErrInvalidURL without any network call.
// A failed create, or one answered with a row of another owner, leaves
// the collection untouched and returns a *domain.RepositoryError; it is
// not retried.
func (e *Engine) AddBookmark(ctx context.Context, rawURL, title string) (domain.Bookmark, error) {
	normalized, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return domain.Bookmark{}, err
	}
	title = domain.NormalizeTitle(title, normalized)

	if e.isClosed() {
		return domain.Bookmark{}, ErrClosed
	}

	row, err := e.repo.Create(ctx, normalized, title, e.owner)
	if err != nil {
		e.logger.Warn("failed to create bookmark",
			logger.String("url", normalized),
			logger.Error(err))
		return domain.Bookmark{}, domain.NewRepositoryError("create", err)
	}

	if row.Owner != e.owner {
		e.logger.Error("created row belongs to another owner",
			logger.String("id", row.ID),
			logger.String("row_owner", row.Owner))
		return domain.Bookmark{}, domain.NewRepositoryError("create",
			fmt.Errorf("%w: row %s belongs to %q", ErrForeignRow, row.ID, row.Owner))
	}

	e.apply(domain.Inserted{Row: row})
	return row, nil
}

// DeleteBookmark removes id optimistically, then deletes it remotely. An
// absent id is a no-op without network call.
//
// When the remote delete fails the collection is rebuilt from a fresh
// list and the delete error is swallowed; the caller only sees an error
// when that resync fails too.
func (e *Engine) DeleteBookmark(ctx context.Context, id string) error {
	if !e.apply(domain.Deleted{ID: id, Owner: e.owner}) {
		if e.isClosed() {
			return ErrClosed
		}
		return nil
	}

	if err := e.repo.Delete(ctx, id, e.owner); err != nil {
		e.logger.Warn("failed to delete bookmark, resyncing",
			logger.String("id", id),
			logger.Error(err))

		// The row still exists remotely: a resync already in flight must
		// not replay the delete over its list.
		e.mu.Lock()
		e.forgetDeleteLocked(id)
		e.mu.Unlock()

		if rerr := e.Resync(ctx); rerr != nil {
			e.logger.Error("resync after failed delete failed",
				logger.String("id", id),
				logger.Error(rerr))
			return rerr
		}
	}
	return nil
}

// IngestFeedEvent applies a remote change and reports whether the
// collection changed. Rows of other owners are rejected. Replaying an
// event that is already reflected is a no-op.
func (e *Engine) IngestFeedEvent(evt domain.Event) bool {
	switch ev := evt.(type) {
	case domain.Inserted:
		if ev.Row.Owner != e.owner {
			e.logger.Warn("rejecting foreign row from feed",
				logger.String("id", ev.Row.ID),
				logger.String("row_owner", ev.Row.Owner))
			return false
		}
	case domain.Deleted:
		if ev.Owner != "" && ev.Owner != e.owner {
			e.logger.Warn("rejecting foreign delete from feed",
				logger.String("id", ev.ID),
				logger.String("row_owner", ev.Owner))
			return false
		}
	default:
		e.logger.Warn("ignoring unknown feed event")
		return false
	}
	return e.apply(evt)
}

// Resync replaces the collection with a fresh list from the repository.
// Foreign rows and duplicates are dropped.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.resyncing++
	e.mu.Unlock()

	rows, err := e.repo.ListByOwner(ctx, e.owner)

	e.mu.Lock()
	e.resyncing--
	if err != nil {
		e.clearJournalLocked()
		e.mu.Unlock()
		return domain.NewRepositoryError("list", err)
	}
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	if dropped := e.coll.Replace(rows); dropped > 0 {
		e.logger.Warn("dropped rows from list",
			logger.Int("dropped", dropped))
	}
	for _, evt := range e.journal {
		mutate(e.coll, evt)
	}
	e.clearJournalLocked()
	snap := e.coll.Snapshot()
	e.mu.Unlock()

	e.logger.Debug("collection resynced", logger.Int("count", len(snap)))
	e.notify(snap)
	return nil
}

// apply runs one mutation under the lock and notifies observers when it
// changed something.
func (e *Engine) apply(evt domain.Event) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	changed := mutate(e.coll, evt)
	if changed && e.resyncing > 0 {
		e.journal = append(e.journal, evt)
	}
	var snap []domain.Bookmark
	if changed {
		snap = e.coll.Snapshot()
	}
	e.mu.Unlock()

	if changed {
		e.notify(snap)
	}
	return changed
}

// forgetDeleteLocked drops journaled deletes of id.
func (e *Engine) forgetDeleteLocked(id string) {
	kept := e.journal[:0]
	for _, evt := range e.journal {
		if d, ok := evt.(domain.Deleted); ok && d.ID == id {
			continue
		}
		kept = append(kept, evt)
	}
	e.journal = kept
}

func (e *Engine) clearJournalLocked() {
	if e.resyncing == 0 {
		e.journal = nil
	}
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) notify(snap []domain.Bookmark) {
	e.obsMu.Lock()
	observers := append([]func([]domain.Bookmark){}, e.observers...)
	e.obsMu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func mutate(c *index.Collection, evt domain.Event) bool {
	switch ev := evt.(type) {
	case domain.Inserted:
		return c.Insert(ev.Row)
	case domain.Deleted:
		return c.Remove(ev.ID)
	default:
		return false
	}
}

package index

import (
	"sort"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

// Collection is one owner's ordered bookmark set: created-at descending,
// ties broken by identifier descending. Identifiers are unique and every
// entry belongs to the collection's owner.
//
// Collection is not safe for concurrent use; the reconciliation engine
// serializes access to it.
type Collection struct {
	owner   string
	entries []domain.Bookmark    // sorted, newest first
	byID    map[string]struct{} // ID -> present
}

// NewCollection creates an empty collection for owner.
func NewCollection(owner string) *Collection {
	return &Collection{
		owner: owner,
		byID:  make(map[string]struct{}),
	}
}

// Owner returns the owner every entry belongs to.
func (c *Collection) Owner() string { return c.owner }

// Len returns the number of entries.
func (c *Collection) Len() int { return len(c.entries) }

// Has reports whether an entry with id is present.
func (c *Collection) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Insert admits b at its sorted position. It returns false, leaving the
// collection unchanged, when b belongs to another owner or its ID is
// already present.
func (c *Collection) Insert(b domain.Bookmark) bool {
	if b.Owner != c.owner || b.ID == "" || c.Has(b.ID) {
		return false
	}

	// First position whose entry is not newer than b.
	pos := sort.Search(len(c.entries), func(i int) bool {
		return !c.entries[i].Newer(b)
	})

	c.entries = append(c.entries, domain.Bookmark{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = b
	c.byID[b.ID] = struct{}{}
	return true
}

// Remove deletes the entry with id. It returns false when absent.
func (c *Collection) Remove(id string) bool {
	if !c.Has(id) {
		return false
	}
	for i := range c.entries {
		if c.entries[i].ID == id {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	delete(c.byID, id)
	return true
}

// Replace swaps the content wholesale. Rows of other owners and repeated
// identifiers are dropped; the rest is sorted. It returns how many rows
// were dropped.
func (c *Collection) Replace(rows []domain.Bookmark) int {
	entries := make([]domain.Bookmark, 0, len(rows))
	byID := make(map[string]struct{}, len(rows))
	dropped := 0

	for _, b := range rows {
		if _, dup := byID[b.ID]; dup || b.Owner != c.owner || b.ID == "" {
			dropped++
			continue
		}
		byID[b.ID] = struct{}{}
		entries = append(entries, b)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Newer(entries[j])
	})

	c.entries = entries
	c.byID = byID
	return dropped
}

// Snapshot returns a copy of the entries in order.
func (c *Collection) Snapshot() []domain.Bookmark {
	out := make([]domain.Bookmark, len(c.entries))
	copy(out, c.entries)
	return out
}

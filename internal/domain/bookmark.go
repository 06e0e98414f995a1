package domain

import "time"

// Bookmark is one row of an owner's bookmark collection.
//
// Identity and ordering are assigned by the row store at insert time and
// are never produced by a client. There is no update operation: a bookmark
// is created once and deleted once.
type Bookmark struct {
	// ─────────────────────────────
	// Identity (immutable, store-assigned)
	// ─────────────────────────────

	// ID is the opaque, globally unique row identifier.
	ID string `json:"id"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// URL is the normalized absolute URL.
	// Example: https://example.com
	URL string `json:"url"`

	// Title is the display string. Defaults to URL when left blank.
	Title string `json:"title"`

	// ─────────────────────────────
	// Ownership & ordering
	// ─────────────────────────────

	// Owner is the identifier of the user the row belongs to.
	Owner string `json:"user_id"`

	// CreatedAt is assigned by the row store and is the sole ordering key.
	CreatedAt time.Time `json:"created_at"`
}

// Newer reports whether b sorts before other in a collection:
// created-at descending, ties broken by identifier descending.
func (b Bookmark) Newer(other Bookmark) bool {
	if !b.CreatedAt.Equal(other.CreatedAt) {
		return b.CreatedAt.After(other.CreatedAt)
	}
	return b.ID > other.ID
}

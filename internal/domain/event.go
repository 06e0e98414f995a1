package domain

// Event is a row-level change notification for one owner.
// It is a closed set: Inserted and Deleted are the only implementations.
type Event interface {
	isEvent()
	// EventOwner returns the owner the change belongs to, or "" when the
	// payload did not carry one.
	EventOwner() string
}

// Inserted carries the full row created by some session.
type Inserted struct {
	Row Bookmark
}

// Deleted carries the identifier of a removed row.
type Deleted struct {
	ID    string
	Owner string
}

func (Inserted) isEvent() {}
func (Deleted) isEvent()  {}

func (e Inserted) EventOwner() string { return e.Row.Owner }
func (e Deleted) EventOwner() string  { return e.Owner }

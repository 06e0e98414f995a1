package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidURL is returned when a bookmark URL fails client-side validation.
// No network call is made and no state changes when it is returned.
var ErrInvalidURL = errors.New("invalid url")

// RepositoryError reports a failed create, delete or list round trip.
type RepositoryError struct {
	Op  string // "create" | "delete" | "list"
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s failed: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// NewRepositoryError wraps err unless it already is a RepositoryError.
func NewRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}

// SubscriptionError reports a change feed that failed to establish or dropped.
// It degrades the connection state and is never returned as a blocking error.
type SubscriptionError struct {
	Owner string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("feed subscription for %s failed: %v", e.Owner, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

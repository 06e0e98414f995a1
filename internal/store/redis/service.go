package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/markd/internal/logger"
)

var (
	// ErrNotFound is returned when a row does not exist for the given owner.
	ErrNotFound = errors.New("bookmark not found")
	// ErrMissingOwner is returned when a write is not scoped to an owner.
	ErrMissingOwner = errors.New("owner is required")
)

// Store is the Redis row store for bookmarks. It assigns identifiers and
// created-at timestamps and publishes every applied change on the owner's
// feed channel.
type Store struct {
	client *redis.Client
	logger logger.Logger
	now    func() time.Time
	newID  func() (uuid.UUID, error)
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		client: client,
		logger: log,
		now:    time.Now,
		newID:  uuid.NewV7,
	}
}

// Ping checks that the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

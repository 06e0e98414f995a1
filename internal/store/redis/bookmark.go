package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

// Create inserts a bookmark row for owner. The URL is normalized the same
// way clients normalize it, so rows written by any client look alike.
func (s *Store) Create(ctx context.Context, rawURL, title, owner string) (domain.Bookmark, error) {
	if owner == "" {
		return domain.Bookmark{}, ErrMissingOwner
	}
	normalized, err := domain.NormalizeURL(rawURL)
	if err != nil {
		return domain.Bookmark{}, err
	}

	id, err := s.newID()
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to generate bookmark id: %w", err)
	}

	bookmark := domain.Bookmark{
		ID:    id.String(),
		URL:   normalized,
		Title: domain.NormalizeTitle(title, normalized),
		Owner: owner,
		// Sorted set scores are float64: microseconds keep full precision.
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	data, err := json.Marshal(bookmark)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to marshal bookmark: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BookmarkKey(bookmark.ID), data, 0)
		pipe.ZAdd(ctx, OwnerBookmarksKey(owner), redis.Z{
			Score:  float64(bookmark.CreatedAt.UnixMicro()),
			Member: bookmark.ID,
		})
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to save bookmark: %w", err)
	}

	s.publish(ctx, owner, domain.Inserted{Row: bookmark})
	return bookmark, nil
}

// GetBookmark retrieves a bookmark from Redis by ID
func (s *Store) GetBookmark(ctx context.Context, id string) (*domain.Bookmark, error) {
	data, err := s.client.Get(ctx, BookmarkKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get bookmark: %w", err)
	}

	var bookmark domain.Bookmark
	if err := json.Unmarshal(data, &bookmark); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bookmark: %w", err)
	}

	return &bookmark, nil
}

// ListByOwner returns the owner's bookmarks, newest first.
// Equal timestamps come back in descending identifier order (ZREVRANGE).
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}

	ids, err := s.client.ZRevRange(ctx, OwnerBookmarksKey(owner), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmark IDs: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Bookmark{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = BookmarkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bookmarks: %w", err)
	}

	bookmarks := make([]domain.Bookmark, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a row: skip it
			continue
		}
		var bookmark domain.Bookmark
		if err := json.Unmarshal([]byte(raw), &bookmark); err != nil {
			s.logger.Warnf("skipping unreadable bookmark %s: %v", ids[i], err)
			continue
		}
		if bookmark.Owner != owner {
			continue
		}
		bookmarks = append(bookmarks, bookmark)
	}

	return bookmarks, nil
}

// Delete removes the row id if it belongs to owner. A row that is missing
// or owned by someone else matches nothing and is not an error. It reports
// whether a row was removed.
func (s *Store) Delete(ctx context.Context, id, owner string) (bool, error) {
	if owner == "" {
		return false, ErrMissingOwner
	}

	bookmark, err := s.GetBookmark(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if bookmark.Owner != owner {
		return false, nil
	}

	var removed *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, BookmarkKey(id))
		removed = pipe.ZRem(ctx, OwnerBookmarksKey(owner), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete bookmark: %w", err)
	}

	// A concurrent delete may have won the race; only the winner publishes.
	if removed.Val() == 0 {
		return false, nil
	}

	s.publish(ctx, owner, domain.Deleted{ID: id, Owner: owner})
	return true, nil
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/markd/internal/domain"
)

// PruneDangling removes owner index entries whose row is gone or belongs
// to someone else. ListByOwner already skips them; this keeps the sorted
// sets from growing. It returns how many entries were removed.
func (s *Store) PruneDangling(ctx context.Context) (int, error) {
	pruned := 0
	iter := s.client.Scan(ctx, 0, KeyPrefixOwner+"*:bookmarks", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		owner := strings.TrimSuffix(strings.TrimPrefix(key, KeyPrefixOwner), ":bookmarks")

		n, err := s.pruneOwner(ctx, key, owner)
		if err != nil {
			return pruned, err
		}
		pruned += n
	}
	if err := iter.Err(); err != nil {
		return pruned, fmt.Errorf("failed to scan owner indexes: %w", err)
	}
	return pruned, nil
}

func (s *Store) pruneOwner(ctx context.Context, key, owner string) (int, error) {
	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	rows := make([]string, len(ids))
	for i, id := range ids {
		rows[i] = BookmarkKey(id)
	}
	values, err := s.client.MGet(ctx, rows...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows of %s: %w", key, err)
	}

	var dangling []any
	for i, v := range values {
		raw, ok := v.(string)
		var row domain.Bookmark
		if !ok || json.Unmarshal([]byte(raw), &row) != nil || row.Owner != owner {
			dangling = append(dangling, ids[i])
		}
	}
	if len(dangling) == 0 {
		return 0, nil
	}

	removed, err := s.client.ZRem(ctx, key, dangling...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", key, err)
	}
	s.logger.Infof("pruned %d dangling entries for owner %s", removed, owner)
	return int(removed), nil
}

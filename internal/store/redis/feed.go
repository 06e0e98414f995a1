package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/markd/internal/domain"
	"github.com/MrSnakeDoc/markd/internal/logger"
	"github.com/MrSnakeDoc/markd/internal/wire"
)

// SubscribeFeed opens a pub/sub subscription on the owner's change channel.
// The caller owns the returned PubSub and must Close it.
func (s *Store) SubscribeFeed(ctx context.Context, owner string) *redis.PubSub {
	return s.client.Subscribe(ctx, FeedChannel(owner))
}

// publish broadcasts an applied change (best effort). The row is already
// committed: a lost notification is recovered by client resync, so a
// publish failure never fails the write.
func (s *Store) publish(ctx context.Context, owner string, evt domain.Event) {
	data, err := wire.EncodeEvent(evt)
	if err != nil {
		s.logger.Warn("failed to encode feed event",
			logger.Owner(owner),
			logger.Error(err))
		return
	}
	if err := s.client.Publish(ctx, FeedChannel(owner), data).Err(); err != nil {
		s.logger.Warn("failed to publish feed event",
			logger.Owner(owner),
			logger.Error(err))
	}
}

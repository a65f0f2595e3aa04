package push

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
)

// badgeTTL bounds staleness when an invalidation is missed.
const badgeTTL = time.Minute

// UnseenCounter answers the authoritative unseen count from storage.
type UnseenCounter interface {
	UnseenCount(ctx context.Context, userID string) (int, error)
}

// Badges caches per-user unseen counts in Redis. The SQL count is the
// source of truth; the cache absorbs the badge lookups every push payload
// needs.
type Badges struct {
	redis  *redis.Client
	counts UnseenCounter
	log    logger.Logger
}

func NewBadges(rdb *redis.Client, counts UnseenCounter, log logger.Logger) *Badges {
	return &Badges{redis: rdb, counts: counts, log: log}
}

func badgeKey(userID string) string {
	return "notifications:badge:" + userID
}

// Get returns the user's unseen badge count, from cache when fresh.
func (b *Badges) Get(ctx context.Context, userID string) (int, error) {
	cached, err := b.redis.Get(ctx, badgeKey(userID)).Result()
	if err == nil {
		if n, convErr := strconv.Atoi(cached); convErr == nil {
			return n, nil
		}
	} else if err != redis.Nil {
		b.log.WithError(err).Warn("Badge cache read failed, falling back to storage", nil)
	}

	n, err := b.counts.UnseenCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := b.redis.Set(ctx, badgeKey(userID), n, badgeTTL).Err(); err != nil {
		b.log.WithError(err).Warn("Badge cache write failed", nil)
	}
	return n, nil
}

// Invalidate drops the cached badge for a user. Called when a notification
// addressed to the user is created or seen.
func (b *Badges) Invalidate(ctx context.Context, userID string) {
	if err := b.redis.Del(ctx, badgeKey(userID)).Err(); err != nil {
		b.log.WithError(err).Warn("Badge cache invalidation failed", map[string]interface{}{
			"user_id": userID,
		})
	}
}

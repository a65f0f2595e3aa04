package push

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/DOM-Digital-Online-Media/dom-notifications/internal/common/logger"
)

type fakeUnseenCounter struct {
	count int
	calls int
}

func (f *fakeUnseenCounter) UnseenCount(ctx context.Context, userID string) (int, error) {
	f.calls++
	return f.count, nil
}

func newTestBadges(t *testing.T, counts *fakeUnseenCounter) (*Badges, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewBadges(rdb, counts, logger.NewNoOpLogger()), mr
}

func TestBadges_Get_CacheMissHitsStorage(t *testing.T) {
	counts := &fakeUnseenCounter{count: 4}
	badges, mr := newTestBadges(t, counts)

	n, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, counts.calls)

	// The result is cached for subsequent lookups.
	cached, err := mr.Get("notifications:badge:1")
	assert.NoError(t, err)
	assert.Equal(t, "4", cached)
}

func TestBadges_Get_CacheHitSkipsStorage(t *testing.T) {
	counts := &fakeUnseenCounter{count: 4}
	badges, _ := newTestBadges(t, counts)

	_, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err)

	n, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, counts.calls, "second read comes from cache")
}

func TestBadges_Get_ExpiredCacheRefreshes(t *testing.T) {
	counts := &fakeUnseenCounter{count: 2}
	badges, mr := newTestBadges(t, counts)

	_, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err)

	mr.FastForward(badgeTTL * 2)
	counts.count = 5

	n, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 2, counts.calls)
}

func TestBadges_Get_CacheFailureFallsBackToStorage(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	counts := &fakeUnseenCounter{count: 6}
	badges := NewBadges(rdb, counts, logger.NewNoOpLogger())

	mock.ExpectGet("notifications:badge:1").SetErr(errors.New("connection refused"))
	mock.ExpectSet("notifications:badge:1", 6, badgeTTL).SetErr(errors.New("connection refused"))

	n, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err, "cache trouble never fails a badge read")
	assert.Equal(t, 6, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBadges_Invalidate(t *testing.T) {
	counts := &fakeUnseenCounter{count: 3}
	badges, mr := newTestBadges(t, counts)

	_, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err)
	assert.True(t, mr.Exists("notifications:badge:1"))

	badges.Invalidate(context.Background(), "1")
	assert.False(t, mr.Exists("notifications:badge:1"))

	counts.count = 7
	n, err := badges.Get(context.Background(), "1")
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
}

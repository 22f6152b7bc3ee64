package cache

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (LeaderboardCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisLeaderboardCache(client, time.Minute), mr
}

func TestTopKeyIncludesVersionAndLimit(t *testing.T) {
	assert.Equal(t, "leaderboard:top:v0:n10", topKey(0, 10))
	assert.NotEqual(t, topKey(1, 10), topKey(2, 10))
	assert.NotEqual(t, topKey(1, 10), topKey(1, 20))
}

func TestNoopAlwaysMisses(t *testing.T) {
	c := NewNoop()
	ctx := context.Background()

	require.NoError(t, c.SetTop(ctx, 0, 10, []*models.LeaderboardEntry{{UserID: 1}}))
	entries, ok, err := c.GetTop(ctx, 0, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entries)
	assert.NoError(t, c.Invalidate(ctx))
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestRedisCacheStoresPageUnderVersion(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	_, ok, err := c.GetTop(ctx, v, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetTop(ctx, v, 10, []*models.LeaderboardEntry{{UserID: 4, TotalPoints: 9}}))
	entries, ok, err := c.GetTop(ctx, v, 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, 9, entries[0].TotalPoints)
	assert.Equal(t, time.Minute, mr.TTL(topKey(v, 10)))
}

func TestRedisCacheRerankDuringLoadDoesNotLeakStalePage(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()

	// читатель промахнулся на версии v и грузит строки из базы
	v, err := c.Version(ctx)
	require.NoError(t, err)
	_, ok, err := c.GetTop(ctx, v, 10)
	require.NoError(t, err)
	require.False(t, ok)

	// тем временем прошло переранжирование
	require.NoError(t, c.Invalidate(ctx))

	// устаревшая страница пишется под старой версией
	require.NoError(t, c.SetTop(ctx, v, 10, []*models.LeaderboardEntry{{UserID: 1, TotalPoints: 3}}))

	current, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v+1, current)
	_, ok, err = c.GetTop(ctx, current, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

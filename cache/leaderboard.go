package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/dinor-predictions/models"
	"github.com/redis/go-redis/v9"
)

const (
	// VersionKey bumps on every rerank; cached pages keyed by an older version are never read again.
	VersionKey = "leaderboard:version"
	topKeyFmt  = "leaderboard:top:v%d:n%d"
)

// LeaderboardCache stores top-N pages of the global leaderboard. Pages are
// keyed by the version read before loading them, so a page built from rows
// older than a rerank is never stored under the newer version.
type LeaderboardCache interface {
	Version(ctx context.Context) (int64, error)
	GetTop(ctx context.Context, version int64, limit int) ([]*models.LeaderboardEntry, bool, error)
	SetTop(ctx context.Context, version int64, limit int, entries []*models.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

type redisLeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLeaderboardCache(client *redis.Client, ttl time.Duration) LeaderboardCache {
	return &redisLeaderboardCache{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// URL and checks the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *redisLeaderboardCache) Version(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, VersionKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read leaderboard version: %w", err)
	}
	return v, nil
}

func topKey(version int64, limit int) string {
	return fmt.Sprintf(topKeyFmt, version, limit)
}

func (c *redisLeaderboardCache) GetTop(ctx context.Context, version int64, limit int) ([]*models.LeaderboardEntry, bool, error) {
	raw, err := c.client.Get(ctx, topKey(version, limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached leaderboard: %w", err)
	}

	var entries []*models.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("corrupt cached leaderboard: %w", err)
	}
	return entries, true, nil
}

func (c *redisLeaderboardCache) SetTop(ctx context.Context, version int64, limit int, entries []*models.LeaderboardEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode leaderboard: %w", err)
	}
	return c.client.Set(ctx, topKey(version, limit), raw, c.ttl).Err()
}

func (c *redisLeaderboardCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, VersionKey).Err()
}

type noopLeaderboardCache struct{}

// NewNoop is used when REDIS_URL is empty: every lookup misses.
func NewNoop() LeaderboardCache { return noopLeaderboardCache{} }

func (noopLeaderboardCache) Version(context.Context) (int64, error) { return 0, nil }

func (noopLeaderboardCache) GetTop(context.Context, int64, int) ([]*models.LeaderboardEntry, bool, error) {
	return nil, false, nil
}

func (noopLeaderboardCache) SetTop(context.Context, int64, int, []*models.LeaderboardEntry) error {
	return nil
}

func (noopLeaderboardCache) Invalidate(context.Context) error { return nil }

package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/open-notifier/internal/domain"
)

const dedupKeyPrefix = "open_dedup:"

// RedisIndex implements domain.RecencyIndex on Redis so the dedup window
// survives process restarts. Each email id maps to the highest opens count
// seen, with the retention window as the key TTL; Redis expiry replaces the
// explicit purge the in-memory index does.
type RedisIndex struct {
	client    *redis.Client
	logger    *slog.Logger
	retention time.Duration
}

// NewRedisIndex creates a Redis-backed recency index and verifies
// connectivity.
func NewRedisIndex(ctx context.Context, client *redis.Client, logger *slog.Logger, retention time.Duration) (*RedisIndex, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}
	return &RedisIndex{
		client:    client,
		logger:    logger.With("component", "redis_index"),
		retention: retention,
	}, nil
}

func (i *RedisIndex) key(emailID string) string {
	return dedupKeyPrefix + emailID
}

// IsKnown reports whether an unexpired mark exists with a count greater than
// or equal to opensCount.
func (i *RedisIndex) IsKnown(ctx context.Context, emailID string, opensCount int) (bool, error) {
	val, err := i.client.Get(ctx, i.key(emailID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup probe: %w", err)
	}

	maxCount, err := strconv.Atoi(val)
	if err != nil {
		// A malformed entry is treated as absent rather than wedging dedup.
		i.logger.Warn("malformed dedup entry, treating as unknown", "email_id", emailID, "value", val)
		return false, nil
	}
	return opensCount <= maxCount, nil
}

// Mark records the pair with the retention window as TTL, keeping the highest
// count seen. The read-then-set is not atomic; concurrent marks for the same
// email race only between observations the coordinator already deduplicated.
func (i *RedisIndex) Mark(ctx context.Context, emailID string, opensCount int, _ time.Time) error {
	val, err := i.client.Get(ctx, i.key(emailID)).Result()
	if err == nil {
		if existing, convErr := strconv.Atoi(val); convErr == nil && existing > opensCount {
			opensCount = existing
		}
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("dedup mark read: %w", err)
	}

	if err := i.client.Set(ctx, i.key(emailID), strconv.Itoa(opensCount), i.retention).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

// Stats counts current entries by scanning the dedup keyspace. Event volume
// is low, so a full scan is fine here.
func (i *RedisIndex) Stats(ctx context.Context) (domain.IndexStats, error) {
	stats := domain.IndexStats{Retention: i.retention}

	iter := i.client.Scan(ctx, 0, dedupKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.Size++
	}
	if err := iter.Err(); err != nil {
		return domain.IndexStats{}, fmt.Errorf("dedup stats: %w", err)
	}
	return stats, nil
}

// Clear removes every dedup entry.
func (i *RedisIndex) Clear(ctx context.Context) error {
	iter := i.client.Scan(ctx, 0, dedupKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := i.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("dedup clear: %w", err)
		}
	}
	return iter.Err()
}

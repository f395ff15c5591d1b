// Package cache provides an optional Redis-backed read-through cache for
// per-post comment counts. The thread service works without it; wiring a
// cache only short-circuits the count query on hot posts.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	commentCountKeyPrefix = "community:comment_count:"
	defaultCountTTL       = 5 * time.Minute
)

var errMissingAddress = errors.New("cache: redis address is required")

// Config describes the Redis connection.
type Config struct {
	Address  string
	Password string
	DB       int
	CountTTL time.Duration
}

// CommentCountCache caches per-post comment totals in Redis.
type CommentCountCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCommentCountCache connects to Redis and verifies the connection.
func NewCommentCountCache(ctx context.Context, cfg Config) (*CommentCountCache, error) {
	if cfg.Address == "" {
		return nil, errMissingAddress
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	ttl := cfg.CountTTL
	if ttl <= 0 {
		ttl = defaultCountTTL
	}
	return &CommentCountCache{client: client, ttl: ttl}, nil
}

// GetCommentCount returns the cached total for a post and whether the key
// was present.
func (c *CommentCountCache) GetCommentCount(ctx context.Context, postID string) (int64, bool, error) {
	value, err := c.client.Get(ctx, commentCountKey(postID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	total, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cache: corrupt count for post %s: %w", postID, err)
	}
	return total, true, nil
}

// SetCommentCount stores the total for a post with the configured TTL.
func (c *CommentCountCache) SetCommentCount(ctx context.Context, postID string, total int64) error {
	return c.client.Set(ctx, commentCountKey(postID), strconv.FormatInt(total, 10), c.ttl).Err()
}

// InvalidateCommentCount drops the cached total for a post.
func (c *CommentCountCache) InvalidateCommentCount(ctx context.Context, postID string) error {
	return c.client.Del(ctx, commentCountKey(postID)).Err()
}

// Close releases the underlying Redis connection.
func (c *CommentCountCache) Close() error {
	return c.client.Close()
}

func commentCountKey(postID string) string {
	return commentCountKeyPrefix + postID
}

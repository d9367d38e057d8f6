package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/feed-system/photo-feed/internal/models"
	"github.com/feed-system/photo-feed/pkg/cache"
	"github.com/feed-system/photo-feed/pkg/logger"
	"github.com/google/uuid"
)

// RedisPostCache caches post records so a feed page resolves with one MGET.
// Posts never change after creation, so entries only expire.
type RedisPostCache struct {
	cache  *cache.RedisClient
	ttl    time.Duration
	logger *logger.Logger
}

func NewRedisPostCache(cache *cache.RedisClient, ttl time.Duration, logger *logger.Logger) *RedisPostCache {
	return &RedisPostCache{cache: cache, ttl: ttl, logger: logger}
}

func postKey(id uuid.UUID) string {
	return fmt.Sprintf("post:%s", id.String())
}

// GetMany returns the cached subset of ids. Undecodable entries count as misses.
func (c *RedisPostCache) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Post, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = postKey(id)
	}

	values, err := c.cache.MGetRaw(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to read cached posts: %w", err)
	}

	found := make(map[uuid.UUID]*models.Post, len(values))
	for i, raw := range values {
		if raw == nil {
			continue
		}
		var post models.Post
		if err := json.Unmarshal(raw, &post); err != nil {
			c.logger.WithError(err).WithField("key", keys[i]).Warn("Dropping corrupt cached post")
			continue
		}
		found[ids[i]] = &post
	}
	return found, nil
}

func (c *RedisPostCache) SetMany(ctx context.Context, posts []*models.Post) error {
	values := make(map[string]interface{}, len(posts))
	for _, p := range posts {
		values[postKey(p.ID)] = p
	}
	if err := c.cache.SetManyJSON(ctx, values, c.ttl); err != nil {
		return fmt.Errorf("failed to cache posts: %w", err)
	}
	return nil
}

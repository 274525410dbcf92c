package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"urlshort/internal/cache"
	"urlshort/internal/models"
)

const keyPrefix = "url:"

func key(shortCode string) string {
	return keyPrefix + shortCode
}

// URLCache stores JSON snapshots of url records in redis under
// `url:<code>` keys. Entries are derived, disposable views of the
// record store; the cache never originates data.
type URLCache struct {
	client *redis.Client
}

func NewURLCache(client *redis.Client) *URLCache {
	return &URLCache{
		client: client,
	}
}

// Get returns the cached record for a short code, or cache.ErrCacheMiss
// when the key is absent.
func (c *URLCache) Get(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "cache.redis.URLCache.Get"

	data, err := c.client.Get(ctx, key(shortCode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, cache.ErrCacheMiss)
		}

		return nil, fmt.Errorf("%s: failed to get cache entry: %w", op, err)
	}

	var url models.URL
	if err := json.Unmarshal(data, &url); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal cache entry: %w", op, err)
	}

	return &url, nil
}

// Set writes a record snapshot with a TTL. Only values freshly read from
// the record store should be passed here.
func (c *URLCache) Set(ctx context.Context, url *models.URL, ttl time.Duration) error {
	const op = "cache.redis.URLCache.Set"

	data, err := json.Marshal(url)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal cache entry: %w", op, err)
	}

	if err := c.client.Set(ctx, key(url.ShortCode), data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set cache entry: %w", op, err)
	}

	return nil
}

// Delete invalidates the entry for a short code. Deleting an absent key
// is a no-op.
func (c *URLCache) Delete(ctx context.Context, shortCode string) error {
	const op = "cache.redis.URLCache.Delete"

	if err := c.client.Del(ctx, key(shortCode)).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete cache entry: %w", op, err)
	}

	return nil
}

// DeletePrefix removes every key under the `url:` prefix.
func (c *URLCache) DeletePrefix(ctx context.Context) error {
	const op = "cache.redis.URLCache.DeletePrefix"

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%s: failed to delete cache entry: %w", op, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: failed to scan cache keys: %w", op, err)
	}

	return nil
}

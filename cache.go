package pagekit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a resolved permission set is reused.
const DefaultCacheTTL = time.Minute

const cacheKeyPrefix = "pagekit:perm"

// RedisCache memoizes resolved permissions in Redis, one key per (user, page).
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache creates a cache over client. A non-positive ttl uses DefaultCacheTTL.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
//	service := pagekit.NewService(db, pagekit.WithCache(pagekit.NewRedisCache(client, time.Minute)))
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pagekit: redis ping: %w", err)
	}
	return client, nil
}

func cacheKey(userID, pageCode string) string {
	return cacheKeyPrefix + ":" + userID + ":" + pageCode
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// globLiteral escapes s so SCAN MATCH treats it as literal text.
func globLiteral(s string) string {
	return globEscaper.Replace(s)
}

// Get returns the cached permissions and whether there was an entry.
func (c *RedisCache) Get(ctx context.Context, userID, pageCode string) (Permissions, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID, pageCode)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NoPermissions, false, nil
	}
	if err != nil {
		return NoPermissions, false, err
	}

	var perms Permissions
	if err := json.Unmarshal(raw, &perms); err != nil {
		return NoPermissions, false, fmt.Errorf("pagekit: decode cached permissions: %w", err)
	}
	return perms, true, nil
}

// Set stores perms for (user, page) with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, userID, pageCode string, perms Permissions) error {
	raw, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(userID, pageCode), raw, c.ttl).Err()
}

// InvalidateUser drops every cached page of a user.
func (c *RedisCache) InvalidateUser(ctx context.Context, userID string) error {
	return c.deleteMatching(ctx, cacheKeyPrefix+":"+globLiteral(userID)+":*")
}

// InvalidatePage drops every cached user of a page.
func (c *RedisCache) InvalidatePage(ctx context.Context, pageCode string) error {
	return c.deleteMatching(ctx, cacheKeyPrefix+":*:"+globLiteral(pageCode))
}

// InvalidateAll drops every cached permission set.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	return c.deleteMatching(ctx, cacheKeyPrefix+":*")
}

func (c *RedisCache) deleteMatching(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

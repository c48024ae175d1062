package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/sentinel/internal/authz"
)

const defaultCachePrefix = "sentinel:principal"

// Cache keeps loaded principals in Redis. Every administrative mutation bumps
// a version counter that is part of the key, so stale snapshots are never
// read again and simply expire.
type Cache struct {
	client *redis.Client
	loader Loader
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	group  singleflight.Group
}

// NewCache wraps loader with a Redis cache.
func NewCache(client *redis.Client, loader Loader, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, loader: loader, ttl: ttl, prefix: defaultCachePrefix, logger: logger}
}

// LoadPrincipal returns the cached principal or loads and stores it.
// Redis failures degrade to a direct load.
func (c *Cache) LoadPrincipal(ctx context.Context, userID int64) (authz.Principal, error) {
	version, err := c.version(ctx)
	if err != nil {
		c.logger.Warn("principal cache version", slog.Any("error", err))
		return c.loader.LoadPrincipal(ctx, userID)
	}
	key := fmt.Sprintf("%s:v%d:%d", c.prefix, version, userID)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p authz.Principal
		if err := json.Unmarshal(data, &p); err == nil {
			return p.Index(), nil
		}
		c.logger.Warn("principal cache decode", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("principal cache get", slog.Any("error", err))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := c.loader.LoadPrincipal(ctx, userID)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(p); err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Warn("principal cache set", slog.Any("error", err))
			}
		}
		return p, nil
	})
	if err != nil {
		return authz.Principal{}, err
	}
	return v.(authz.Principal), nil
}

// Invalidate drops every cached principal.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, c.versionKey()).Err()
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	raw, err := c.client.Get(ctx, c.versionKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (c *Cache) versionKey() string {
	return c.prefix + ":version"
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ScanCleanup/internal/cleanup/domain"
)

type redisSiteCache struct {
	client *redis.Client
	keys   keySet
	ttl    time.Duration
}

func NewRedisSiteCache(client *redis.Client, prefix string, ttl time.Duration) SiteCache {
	return &redisSiteCache{client: client, keys: newKeySet(prefix), ttl: ttl}
}

func (c *redisSiteCache) GetSite(ctx context.Context, siteID int64) (*domain.SiteInfo, error) {
	data, err := c.client.Get(ctx, c.keys.site(siteID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}

	var site domain.SiteInfo
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to decode site %d: %w", siteID, err)
	}
	return &site, nil
}

func (c *redisSiteCache) SetSite(ctx context.Context, site *domain.SiteInfo) error {
	data, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("failed to marshal site: %w", err)
	}
	return c.client.Set(ctx, c.keys.site(site.ID), data, c.ttl).Err()
}

package handler

import (
	"context"
	"log/slog"
	"sync"

	"ScanCleanup/internal/cleanup/domain"
)

// SiteAnnotator resolves site names for log lines. A failed lookup yields an
// empty SiteInfo and is never surfaced to the caller.
type SiteAnnotator struct {
	resolver SiteResolver
	cache    SiteCache
	logger   *slog.Logger
}

// NewSiteAnnotator uses an in-process cache when cache is nil.
func NewSiteAnnotator(resolver SiteResolver, cache SiteCache, logger *slog.Logger) *SiteAnnotator {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NewMemorySiteCache()
	}
	return &SiteAnnotator{
		resolver: resolver,
		cache:    cache,
		logger:   logger.With("component", "site_annotator"),
	}
}

func (a *SiteAnnotator) Lookup(ctx context.Context, siteID int64) domain.SiteInfo {
	if siteID <= 0 {
		return domain.SiteInfo{ID: siteID}
	}

	cached, err := a.cache.GetSite(ctx, siteID)
	if err != nil {
		a.logger.Debug("site cache read failed", "site_id", siteID, "error", err)
	}
	if cached != nil {
		return *cached
	}

	site, err := a.resolver.Site(ctx, siteID)
	if err != nil {
		a.logger.Debug("site lookup failed", "site_id", siteID, "error", err)
		return domain.SiteInfo{ID: siteID}
	}

	if err := a.cache.SetSite(ctx, site); err != nil {
		a.logger.Debug("site cache write failed", "site_id", siteID, "error", err)
	}
	return *site
}

// MemorySiteCache keeps sites for the lifetime of the process.
type MemorySiteCache struct {
	mu    sync.RWMutex
	sites map[int64]domain.SiteInfo
}

func NewMemorySiteCache() *MemorySiteCache {
	return &MemorySiteCache{sites: make(map[int64]domain.SiteInfo)}
}

func (c *MemorySiteCache) GetSite(_ context.Context, siteID int64) (*domain.SiteInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	site, ok := c.sites[siteID]
	if !ok {
		return nil, nil
	}
	return &site, nil
}

func (c *MemorySiteCache) SetSite(_ context.Context, site *domain.SiteInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sites[site.ID] = *site
	return nil
}

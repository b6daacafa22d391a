package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScanCleanup/internal/cleanup/domain"
)

type fakeResolver struct {
	sites map[int64]domain.SiteInfo
	calls int
}

func (f *fakeResolver) Site(_ context.Context, siteID int64) (*domain.SiteInfo, error) {
	f.calls++
	site, ok := f.sites[siteID]
	if !ok {
		return nil, errors.New("site not found")
	}
	return &site, nil
}

type brokenCache struct{}

func (brokenCache) GetSite(context.Context, int64) (*domain.SiteInfo, error) {
	return nil, errors.New("cache down")
}

func (brokenCache) SetSite(context.Context, *domain.SiteInfo) error {
	return errors.New("cache down")
}

func TestSiteAnnotator_CachesLookups(t *testing.T) {
	resolver := &fakeResolver{sites: map[int64]domain.SiteInfo{4: {ID: 4, Name: "Branch", ScanTemplateID: "full-audit"}}}
	a := NewSiteAnnotator(resolver, nil, testLogger())
	ctx := context.Background()

	assert.Equal(t, "Branch", a.Lookup(ctx, 4).Name)
	assert.Equal(t, "full-audit", a.Lookup(ctx, 4).ScanTemplateID)
	assert.Equal(t, 1, resolver.calls)
}

func TestSiteAnnotator_FailureIsEmpty(t *testing.T) {
	resolver := &fakeResolver{}
	a := NewSiteAnnotator(resolver, nil, testLogger())

	site := a.Lookup(context.Background(), 12)
	assert.Equal(t, domain.SiteInfo{ID: 12}, site)

	// failures are not cached
	a.Lookup(context.Background(), 12)
	assert.Equal(t, 2, resolver.calls)
}

func TestSiteAnnotator_SkipsUnknownSite(t *testing.T) {
	resolver := &fakeResolver{}
	a := NewSiteAnnotator(resolver, nil, testLogger())

	assert.Empty(t, a.Lookup(context.Background(), 0).Name)
	assert.Zero(t, resolver.calls)
}

func TestSiteAnnotator_BrokenCacheFallsThrough(t *testing.T) {
	resolver := &fakeResolver{sites: map[int64]domain.SiteInfo{1: {ID: 1, Name: "Lab"}}}
	a := NewSiteAnnotator(resolver, brokenCache{}, testLogger())

	assert.Equal(t, "Lab", a.Lookup(context.Background(), 1).Name)
	assert.Equal(t, "Lab", a.Lookup(context.Background(), 1).Name)
	assert.Equal(t, 2, resolver.calls)
}

func TestMemorySiteCache(t *testing.T) {
	cache := NewMemorySiteCache()
	ctx := context.Background()

	site, err := cache.GetSite(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, site)

	require.NoError(t, cache.SetSite(ctx, &domain.SiteInfo{ID: 1, Name: "Lab"}))
	site, err = cache.GetSite(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Lab", site.Name)
}

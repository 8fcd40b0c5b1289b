package instruments

import (
	"context"
	"time"

	"github.com/vantagefolio/valora/internal/contracts"
	"github.com/vantagefolio/valora/pkg/redis"
)

// CachedProvider wraps a MetadataProvider with the shared Redis cache.
// Symbol lists are not cached; they only feed the nightly
// materialization sweep.
type CachedProvider struct {
	inner contracts.MetadataProvider
	cache *redis.Cache
	ttl   time.Duration
}

// NewCachedProvider creates a caching metadata decorator
func NewCachedProvider(inner contracts.MetadataProvider, cache *redis.Cache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl}
}

var _ contracts.MetadataProvider = (*CachedProvider)(nil)

// GetInstrument serves from cache when possible. Cache errors fall
// through to the source; metadata reads must never fail on Redis.
func (p *CachedProvider) GetInstrument(ctx context.Context, symbol string) (*contracts.InstrumentMeta, error) {
	key := redis.InstrumentMetaKey(symbol)

	var cached contracts.InstrumentMeta
	if found, err := p.cache.Get(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	meta, err := p.inner.GetInstrument(ctx, symbol)
	if err != nil || meta == nil {
		return meta, err
	}

	_ = p.cache.Set(ctx, key, meta, p.ttl)
	return meta, nil
}

// ListSymbols passes through to the source
func (p *CachedProvider) ListSymbols(ctx context.Context) ([]string, error) {
	return p.inner.ListSymbols(ctx)
}

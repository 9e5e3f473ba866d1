package suggest

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"relaygate-gateway/internal/cache"
	"relaygate-gateway/pkg/logging/logging"
)

// CachingProvider wraps a Provider with the suggestion cache tier:
// identical completed turns produce identical suggestions within the TTL,
// so the expensive enrichment call is skipped. Cache errors are logged and
// treated as misses.
type CachingProvider struct {
	inner     Provider
	store     cache.Store
	ttl       time.Duration
	appName   string
	versionID string
}

func NewCachingProvider(inner Provider, store cache.Store, ttl time.Duration, appName, versionID string) *CachingProvider {
	return &CachingProvider{
		inner:     inner,
		store:     store,
		ttl:       ttl,
		appName:   appName,
		versionID: versionID,
	}
}

func (p *CachingProvider) Suggest(ctx context.Context, turnText string, toolCtx []ToolResult) (*Content, error) {
	logger := logging.L(ctx)

	toolBytes, err := json.Marshal(toolCtx)
	if err != nil {
		// Should not happen for map-based tool results; fall through to
		// the inner provider uncached.
		logger.Warn("suggest_key_marshal_error", zap.Error(err))
		return p.inner.Suggest(ctx, turnText, toolCtx)
	}

	key := cache.BuildSuggestKey(p.appName, p.versionID, turnText, toolBytes).String()

	if raw, hit, cacheErr := p.store.Get(ctx, key); cacheErr != nil {
		logger.Warn("suggest_cache_get_error", zap.Error(cacheErr))
	} else if hit {
		var content Content
		if err := json.Unmarshal(raw, &content); err != nil {
			logger.Warn("suggest_cache_unmarshal_error", zap.Error(err))
		} else {
			return &content, nil
		}
	}

	content, err := p.inner.Suggest(ctx, turnText, toolCtx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(content); err == nil {
		if err := p.store.Set(ctx, key, raw, p.ttl); err != nil {
			logger.Warn("suggest_cache_set_error", zap.Error(err))
		}
	}

	return content, nil
}

package auth

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"relaygate-gateway/internal/metrics"
)

const (
	// SafetyMargin is the minimum remaining validity a handed-out token
	// must carry. Anything closer to expiry triggers a refresh.
	SafetyMargin = 60 * time.Second

	// expirySlack shortens the provider's advertised lifetime before
	// storing, so clock skew against the provider cannot hand out a token
	// that is already dead upstream.
	expirySlack = 30 * time.Second

	// maxValidity caps how long a cached credential is trusted regardless
	// of what the provider claims.
	maxValidity = 55 * time.Minute
)

type cachedCredential struct {
	token     string
	expiresAt time.Time
}

// Cache wraps a Provider with an expiry-aware credential cache.
//
// The cache is deliberately lock-free: the current credential lives in an
// atomic pointer, and a refresh is a pure fetch-then-store. Concurrent
// callers racing past expiry may each fetch a token; every one of them
// independently stores a valid credential, so the race is wasteful but
// never incorrect.
type Cache struct {
	provider Provider
	logger   *zap.Logger
	current  atomic.Pointer[cachedCredential]

	// now is replaceable in tests.
	now func() time.Time
}

// NewCache builds a token cache over the given provider.
func NewCache(provider Provider, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		provider: provider,
		logger:   logger.Named("auth"),
		now:      time.Now,
	}
}

// Token returns a bearer token with at least SafetyMargin of validity left,
// refreshing synchronously when the cached one is missing or too close to
// expiry. Failures are *Error.
func (c *Cache) Token(ctx context.Context) (string, error) {
	now := c.now()

	if cred := c.current.Load(); cred != nil && now.Add(SafetyMargin).Before(cred.expiresAt) {
		return cred.token, nil
	}

	cred, err := c.provider.Fetch(ctx)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		c.logger.Error("credential refresh failed", zap.Error(err))
		if IsAuthError(err) {
			return "", err
		}
		return "", &Error{Reason: "credential provider failed", Err: err}
	}
	if cred.Token == "" {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return "", &Error{Reason: "credential provider returned empty token"}
	}

	validity := cred.ExpiresIn - expirySlack
	if validity > maxValidity {
		validity = maxValidity
	}
	if validity <= SafetyMargin {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return "", &Error{Reason: "credential lifetime shorter than safety margin"}
	}

	c.current.Store(&cachedCredential{
		token:     cred.Token,
		expiresAt: now.Add(validity),
	})

	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()
	c.logger.Info("credential refreshed",
		zap.Duration("validity", validity),
	)

	return cred.Token, nil
}

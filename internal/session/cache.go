package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/metrics"
	"github.com/desertthunder/harmony/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshBuffer is how much lifetime a cached token must have left to be handed out.
const DefaultRefreshBuffer = 60 * time.Second

// Refresher obtains a fresh token.
type Refresher interface {
	Refresh(ctx context.Context) (*oauth2.Token, error)
}

// RefresherFunc adapts a function to [Refresher].
type RefresherFunc func(ctx context.Context) (*oauth2.Token, error)

func (f RefresherFunc) Refresh(ctx context.Context) (*oauth2.Token, error) { return f(ctx) }

// TokenCache holds one provider token for the session that owns it.
//
// Only the refresh routine writes the token; all API callers read through [TokenCache.Token].
type TokenCache struct {
	mu        sync.RWMutex
	token     *oauth2.Token
	buffer    time.Duration
	refresher Refresher
	group     singleflight.Group
	now       func() time.Time
	onRefresh func(*oauth2.Token)
	logger    *log.Logger
}

// CacheOption configures a [TokenCache].
type CacheOption func(*TokenCache)

// WithBuffer overrides [DefaultRefreshBuffer].
func WithBuffer(d time.Duration) CacheOption {
	return func(c *TokenCache) { c.buffer = d }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *TokenCache) { c.now = now }
}

// WithInitialToken seeds the cache, typically from the stored session.
func WithInitialToken(tok *oauth2.Token) CacheOption {
	return func(c *TokenCache) { c.token = tok }
}

// OnRefresh registers a callback run after every successful refresh.
func OnRefresh(fn func(*oauth2.Token)) CacheOption {
	return func(c *TokenCache) { c.onRefresh = fn }
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l *log.Logger) CacheOption {
	return func(c *TokenCache) { c.logger = l }
}

func NewTokenCache(refresher Refresher, opts ...CacheOption) *TokenCache {
	c := &TokenCache{refresher: refresher, buffer: DefaultRefreshBuffer, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(nil)
	}
	return c
}

// Token returns a valid access token, refreshing first if the cached one is
// missing or within the buffer window of expiry.
//
// Concurrent callers during a refresh all wait on the same call.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok.AccessToken, nil
	}
	return c.refresh(ctx, false)
}

// ForceRefresh discards the cached token and refreshes. Used after a 401.
func (c *TokenCache) ForceRefresh(ctx context.Context) (string, error) {
	return c.refresh(ctx, true)
}

// Set replaces the cached token.
func (c *TokenCache) Set(tok *oauth2.Token) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// Clear drops the cached token, e.g. on sign-out.
func (c *TokenCache) Clear() { c.Set(nil) }

// Valid reports whether the cached token outlives the buffer window.
func (c *TokenCache) Valid() bool {
	_, ok := c.cached()
	return ok
}

// Current returns a copy of the cached token, or nil.
func (c *TokenCache) Current() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return nil
	}
	tok := *c.token
	return &tok
}

func (c *TokenCache) cached() (*oauth2.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil || c.token.AccessToken == "" {
		return nil, false
	}
	if c.token.Expiry.IsZero() {
		return c.token, true
	}
	return c.token, c.token.Expiry.Sub(c.now()) > c.buffer
}

func (c *TokenCache) refresh(ctx context.Context, force bool) (string, error) {
	var stale string
	if force {
		if tok := c.Current(); tok != nil {
			stale = tok.AccessToken
		}
	}

	ch := c.group.DoChan("refresh", func() (any, error) {
		// a refresh that finished while this call was queued already replaced the token
		if tok, ok := c.cached(); ok && tok.AccessToken != stale {
			return tok.AccessToken, nil
		}

		start := c.now()
		tok, err := c.refresher.Refresh(context.WithoutCancel(ctx))
		metrics.RecordTokenRefresh(err, c.now().Sub(start))
		if err != nil {
			c.logger.Error("token refresh failed", "error", err)
			return "", err
		}
		if tok == nil || tok.AccessToken == "" {
			return "", fmt.Errorf("%w: empty access token", shared.ErrRefreshFailed)
		}

		c.Set(tok)
		c.logger.Debug("token refreshed", "expires", tok.Expiry)
		if c.onRefresh != nil {
			c.onRefresh(tok)
		}
		return tok.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// TokenSource exposes the cache as an [oauth2.TokenSource].
func (c *TokenCache) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, cache: c}
}

type tokenSource struct {
	ctx   context.Context
	cache *TokenCache
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	if _, err := s.cache.Token(s.ctx); err != nil {
		return nil, err
	}
	return s.cache.Current(), nil
}

package oauth

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gadgethost/pkg/logging"
)

// TokenCacheOptions configures eviction. A zero TTL keeps entries until they
// are removed or overwritten.
type TokenCacheOptions struct {
	TTL time.Duration
	// StateTTL bounds tokens that are not yet access tokens (request tokens
	// and OAuth2 state). Zero falls back to TTL.
	StateTTL        time.Duration
	CleanupInterval time.Duration
}

type cacheEntry struct {
	token     *SecurityToken
	expiresAt time.Time // zero never expires
}

// TokenCache is the process-wide store of pending and granted tokens. It is
// built once by the composition root and shared by reference.
//
// Writes are last-write-wins: a second Add for the same key replaces the first.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry

	ttl      time.Duration
	stateTTL time.Duration
	now      func() time.Time
	group    singleflight.Group

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewTokenCache creates a cache. When both TTL and CleanupInterval are set a
// background goroutine evicts stale entries until Stop is called.
func NewTokenCache(opts TokenCacheOptions) *TokenCache {
	c := &TokenCache{
		entries:     make(map[string]*cacheEntry),
		ttl:         opts.TTL,
		stateTTL:    opts.StateTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	if c.stateTTL <= 0 {
		c.stateTTL = c.ttl
	}
	if (c.ttl > 0 || c.stateTTL > 0) && opts.CleanupInterval > 0 {
		go c.cleanupLoop(opts.CleanupInterval)
	}
	return c
}

// Add stores a copy of token under key, replacing any existing entry.
// Access tokens live for TTL, anything else for StateTTL.
func (c *TokenCache) Add(key string, token *SecurityToken) {
	if key == "" || token == nil {
		return
	}
	ttl := c.stateTTL
	if token.IsAccessToken {
		ttl = c.ttl
	}
	e := &cacheEntry{token: token.Clone()}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	logging.Debug("OAuth", "Cached token key=%s state=%s", logging.TruncateID(key), token.State)
}

// Get returns a copy of the token stored under key, or nil.
func (c *TokenCache) Get(key string) *SecurityToken {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.stale(e, c.now()) {
		return nil
	}
	return e.token.Clone()
}

// Contains reports whether a live entry exists for key.
func (c *TokenCache) Contains(key string) bool {
	return c.Get(key) != nil
}

// Remove deletes the entry for key. It reports whether an entry was present.
func (c *TokenCache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Take removes and returns the token stored under key. Two concurrent
// callers for the same key never both receive it.
func (c *TokenCache) Take(key string) *SecurityToken {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	delete(c.entries, key)
	if c.stale(e, c.now()) {
		return nil
	}
	return e.token
}

// GetOrCreate returns the cached token for key, calling create when none is
// present. Concurrent callers for one key share a single create call.
func (c *TokenCache) GetOrCreate(key string, create func() (*SecurityToken, error)) (*SecurityToken, error) {
	if t := c.Get(key); t != nil {
		return t, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Double-check after winning the flight.
		if t := c.Get(key); t != nil {
			return t, nil
		}
		t, err := create()
		if err != nil {
			return nil, err
		}
		c.Add(key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SecurityToken).Clone(), nil
}

// Len returns the number of entries, including stale ones not yet swept.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (c *TokenCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TokenCache) stale(e *cacheEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

func (c *TokenCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *TokenCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, e := range c.entries {
		if c.stale(e, now) {
			delete(c.entries, key)
			count++
		}
	}
	if count > 0 {
		logging.Debug("OAuth", "Evicted %d stale cache entries", count)
	}
}

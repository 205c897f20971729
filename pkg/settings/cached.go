package settings

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedValue struct {
	value   string
	present bool
}

// CachedBackend keeps recently read values in an LRU in front of a slower backend.
// Writes go through to the backend first; absence is cached too.
type CachedBackend struct {
	backend Backend
	cache   *lru.Cache[string, cachedValue]
}

// NewCachedBackend wraps backend with an LRU of size entries
func NewCachedBackend(backend Backend, size int) (*CachedBackend, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, cachedValue](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings cache: %w", err)
	}
	return &CachedBackend{backend: backend, cache: cache}, nil
}

func cacheKey(scope, key string) string {
	return scope + "\x00" + key
}

func (c *CachedBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	if v, ok := c.cache.Get(cacheKey(scope, key)); ok {
		return v.value, v.present, nil
	}

	value, ok, err := c.backend.Get(ctx, scope, key)
	if err != nil {
		return "", false, err
	}
	c.cache.Add(cacheKey(scope, key), cachedValue{value: value, present: ok})
	return value, ok, nil
}

func (c *CachedBackend) Put(ctx context.Context, scope, key, value string) error {
	if err := c.backend.Put(ctx, scope, key, value); err != nil {
		c.cache.Remove(cacheKey(scope, key))
		return err
	}
	c.cache.Add(cacheKey(scope, key), cachedValue{value: value, present: true})
	return nil
}

func (c *CachedBackend) Delete(ctx context.Context, scope, key string) error {
	c.cache.Remove(cacheKey(scope, key))
	return c.backend.Delete(ctx, scope, key)
}

func (c *CachedBackend) Keys(ctx context.Context, scope string) ([]string, error) {
	return c.backend.Keys(ctx, scope)
}

func (c *CachedBackend) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

func (c *CachedBackend) Close() error {
	c.cache.Purge()
	return c.backend.Close()
}

// Len returns the number of cached entries
func (c *CachedBackend) Len() int {
	return c.cache.Len()
}

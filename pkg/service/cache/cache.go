package cache

import (
	"time"

	"github.com/advisory-lab/themis/pkg/domain/interfaces"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultSize = 1024
	DefaultTTL  = 5 * time.Minute
)

// lruCache implements interfaces.ValidationCache on an expiring LRU.
// The backing cache applies one TTL to all entries; per-call ttl hints
// beyond the default are ignored, which only shortens how long an entry
// may serve and never extends it.
type lruCache struct {
	lru *expirable.LRU[string, *interfaces.CachedValidation]
}

// New creates a validation cache with the given capacity and entry TTL.
// Zero values select the defaults.
func New(size int, ttl time.Duration) (interfaces.ValidationCache, error) {
	if size == 0 {
		size = DefaultSize
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if size < 0 {
		return nil, goerr.New("cache size must be non-negative", goerr.V("size", size))
	}
	if ttl < 0 {
		return nil, goerr.New("cache TTL must be non-negative", goerr.V("ttl", ttl))
	}

	return &lruCache{
		lru: expirable.NewLRU[string, *interfaces.CachedValidation](size, nil, ttl),
	}, nil
}

func (c *lruCache) Get(key string) (*interfaces.CachedValidation, bool) {
	return c.lru.Get(key)
}

func (c *lruCache) Put(key string, entry *interfaces.CachedValidation, _ time.Duration) {
	c.lru.Add(key, entry)
}

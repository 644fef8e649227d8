package odb

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-git/go-git/v5/plumbing"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheEntries is used when a cache is created with a non-positive size.
const DefaultCacheEntries = 1024

// Cache keeps recently found blobs in memory in front of another Finder.
// Each diff run owns its cache and passes it along explicitly.
type Cache struct {
	next  Finder
	cache *lru.Cache[plumbing.Hash, []byte]

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports how a cache was used.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewCache wraps next with an LRU cache holding up to entries blobs.
func NewCache(next Finder, entries int) (*Cache, error) {
	if next == nil {
		return nil, fmt.Errorf("cache needs a backing finder")
	}
	if entries <= 0 {
		entries = DefaultCacheEntries
	}

	cache, err := lru.New[plumbing.Hash, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Cache{next: next, cache: cache}, nil
}

func (c *Cache) Find(ctx context.Context, id plumbing.Hash) ([]byte, error) {
	// Check cache first
	if data, ok := c.cache.Get(id); ok {
		c.hits.Add(1)
		return data, nil
	}
	c.misses.Add(1)

	data, err := c.next.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	c.cache.Add(id, data)
	return data, nil
}

// Purge drops every cached blob.
func (c *Cache) Purge() {
	c.cache.Purge()
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Entries: c.cache.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

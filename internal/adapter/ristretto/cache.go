// Package ristretto implements the in-process preview cache using
// dgraph-io/ristretto. Generated thumbnails are regenerated on miss, so
// eviction under memory pressure is acceptable.
package ristretto

import (
	"github.com/dgraph-io/ristretto/v2"
)

// Cache holds preview thumbnails keyed by task id.
type Cache struct {
	c *ristretto.Cache[string, string]
}

// New creates a ristretto-backed preview cache. maxCostBytes is the maximum
// total size of cached values in bytes.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a cached preview.
func (c *Cache) Get(key string) (string, bool) {
	return c.c.Get(key)
}

// Set stores a preview, costed by its encoded size.
func (c *Cache) Set(key, value string) {
	c.c.Set(key, value, int64(len(value)))
}

// Delete removes a preview.
func (c *Cache) Delete(key string) {
	c.c.Del(key)
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}

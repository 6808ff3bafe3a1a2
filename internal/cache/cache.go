// SPDX-License-Identifier: MIT

// Package cache provides a small TTL cache for fetch metadata, keyed by URL.
// It keeps HEAD results (media type, encoding) so re-crawls of large sites do
// not re-probe every asset.
package cache

import (
	"sync"
	"time"
)

// Meta is the cached metadata for a URL.
type Meta struct {
	MediaType string `json:"media_type"`
	Encoding  string `json:"encoding,omitempty"`
	Extension string `json:"extension,omitempty"`
	Length    int64  `json:"length,omitempty"`
}

// Cache provides thread-safe metadata caching with expiration support.
type Cache interface {
	// Get retrieves metadata for a URL. The second value is false if the
	// entry is absent or expired.
	Get(url string) (Meta, bool)
	// Set stores metadata for a URL with the specified TTL.
	Set(url string, meta Meta, ttl time.Duration)
	// Delete removes a URL from the cache.
	Delete(url string)
	// Stats returns cache statistics.
	Stats() Stats
}

// Stats holds cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Evictions int64
	Size      int
}

type entry struct {
	meta       Meta
	expiration time.Time
}

func (e *entry) expired() bool {
	return time.Now().After(e.expiration)
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	stats   Stats
	janitor *janitor
}

// NewMemory creates an in-memory cache with automatic cleanup. The
// cleanupInterval determines how often expired entries are removed; zero
// disables the janitor.
func NewMemory(cleanupInterval time.Duration) Cache {
	c := &memoryCache{entries: make(map[string]*entry)}
	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}
	return c
}

func (c *memoryCache) Get(url string) (Meta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[url]
	if !found || e.expired() {
		c.stats.Misses++
		return Meta{}, false
	}
	c.stats.Hits++
	return e.meta, true
}

func (c *memoryCache) Set(url string, meta Meta, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = &entry{meta: meta, expiration: time.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache) Delete(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}

func (c *memoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.Size = len(c.entries)
	return stats
}

func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for url, e := range c.entries {
		if e.expired() {
			delete(c.entries, url)
			count++
		}
	}
	c.stats.Evictions += int64(count)
	return count
}

// Stop stops the background cleanup goroutine.
func (c *memoryCache) Stop() {
	if c.janitor != nil {
		c.janitor.stop <- struct{}{}
	}
}

type janitor struct {
	interval time.Duration
	stop     chan struct{}
}

func (j *janitor) run(c *memoryCache) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

type noOpCache struct{}

// NewNoOp creates a cache that doesn't cache anything.
func NewNoOp() Cache {
	return &noOpCache{}
}

func (noOpCache) Get(string) (Meta, bool)         { return Meta{}, false }
func (noOpCache) Set(string, Meta, time.Duration) {}
func (noOpCache) Delete(string)                   {}
func (noOpCache) Stats() Stats                    { return Stats{} }

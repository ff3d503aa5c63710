// Package cache implements the named, bounded, TTL-aware cache regions used
// across the service. Each region is a groupcache lru.Cache bounded to a
// fixed entry count; a TTL is layered on top since groupcache's LRU has no
// expiry primitive of its own.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// Region names, matching the cache invalidation policy table.
const (
	ConfigContent          = "config-content"
	CommitHistory          = "commit-history"
	LatestCommit           = "latest-commit"
	CommitDetails          = "commit-details"
	VaultSecrets           = "vault-secrets"
	Namespaces             = "namespaces"
	DirectoryListing       = "directory-listing"
	NamespaceEvents        = "namespace-events"
	NamespaceNotifications = "namespace-notifications"
)

var allRegions = []string{
	ConfigContent, CommitHistory, LatestCommit, CommitDetails, VaultSecrets,
	Namespaces, DirectoryListing, NamespaceEvents, NamespaceNotifications,
}

// DefaultMaxEntries bounds each region when not overridden.
const DefaultMaxEntries = 500

type entry struct {
	value   any
	expires time.Time
}

type region struct {
	mu  sync.Mutex
	lru *lru.Cache
	ttl time.Duration
}

// Cache holds every named region. Values stored are logically immutable
// snapshots; callers must not mutate a value obtained from Get.
type Cache struct {
	regions map[string]*region
}

// New builds a Cache with every known region bounded to maxEntries and
// expiring entries after ttl.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache{regions: make(map[string]*region, len(allRegions))}
	for _, name := range allRegions {
		c.regions[name] = &region{lru: lru.New(maxEntries), ttl: ttl}
	}
	return c
}

// Get returns the cached value for key in region, if present and unexpired.
func (c *Cache) Get(regionName, key string) (any, bool) {
	r := c.regions[regionName]
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, ok := r.lru.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(entry)
	if r.ttl > 0 && time.Now().After(e.expires) {
		r.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Put stores value under key in region, resetting its TTL.
func (c *Cache) Put(regionName, key string, value any) {
	r := c.regions[regionName]
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var expires time.Time
	if r.ttl > 0 {
		expires = time.Now().Add(r.ttl)
	}
	r.lru.Add(key, entry{value: value, expires: expires})
}

// EvictKey removes a single key from region.
func (c *Cache) EvictKey(regionName, key string) {
	r := c.regions[regionName]
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lru.Remove(key)
}

// EvictAll clears every entry in region.
func (c *Cache) EvictAll(regionName string) {
	r := c.regions[regionName]
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lru.Clear()
}

// EvictByPrefix removes every string key in region beginning with prefix.
//
// Since lru.Cache itself offers no key enumeration, EvictByPrefix is
// implemented by draining and reinserting non-matching entries; this is a
// synchronous, linear-time operation as the spec requires, at the cost of
// disturbing LRU recency for the surviving entries.
func (c *Cache) EvictByPrefix(regionName, prefix string) {
	r := c.regions[regionName]
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[string]entry)
	r.lru.OnEvicted = func(key lru.Key, value any) {
		k, ok := key.(string)
		if !ok || strings.HasPrefix(k, prefix) {
			return
		}
		keep[k] = value.(entry)
	}
	for r.lru.Len() > 0 {
		r.lru.RemoveOldest()
	}
	r.lru.OnEvicted = nil
	for k, e := range keep {
		r.lru.Add(k, e)
	}
}

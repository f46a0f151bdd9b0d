// Package enginecache caches the per-KB "engine" (vector/search handles,
// retrieval service, synthesizer, planner) so a warm query pays only
// retrieval + LLM latency, not client/index construction cost.
package enginecache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/intelligencedev/ragserver/internal/persistence/databases"
	"github.com/intelligencedev/ragserver/internal/planner"
	"github.com/intelligencedev/ragserver/internal/rag/service"
	"github.com/intelligencedev/ragserver/internal/registry"
	"github.com/intelligencedev/ragserver/internal/synth"
)

// Entry bundles everything needed to serve retrieval/synthesis requests for
// one KB.
type Entry struct {
	KB        registry.KB
	Manager   databases.Manager
	Service   *service.Service
	Synth     *synth.Synthesizer
	Planner   *planner.Planner
	CreatedAt time.Time
	LastUsed  time.Time
}

// Constructor builds a fresh Entry for a KB. It is invoked at most once
// concurrently per key thanks to singleflight coalescing in Cache.Get.
type Constructor func(ctx context.Context, kb registry.KB) (Entry, error)

// Cache is a TTL- and capacity-bounded, singleflight-coalesced cache keyed by
// KB name.
type Cache struct {
	mu        sync.Mutex
	ttl       time.Duration
	capacity  int
	entries   map[string]*Entry
	construct Constructor
	sf        singleflight.Group
}

// New creates a Cache. ttl <= 0 defaults to 10 minutes; capacity <= 0
// defaults to 10 entries.
func New(ttl time.Duration, capacity int, construct Constructor) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if capacity <= 0 {
		capacity = 10
	}
	return &Cache{
		ttl:       ttl,
		capacity:  capacity,
		entries:   make(map[string]*Entry),
		construct: construct,
	}
}

// Get returns the cached Entry for kb, constructing (and inserting) one if
// absent or expired. Concurrent Get calls for the same KB name coalesce into
// a single construction.
func (c *Cache) Get(ctx context.Context, kb registry.KB) (*Entry, error) {
	c.mu.Lock()
	if e, ok := c.entries[kb.Name]; ok && time.Since(e.CreatedAt) <= c.ttl {
		e.LastUsed = time.Now()
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do(kb.Name, func() (any, error) {
		entry, err := c.construct(ctx, kb)
		if err != nil {
			return nil, err
		}
		now := time.Now()
		entry.CreatedAt = now
		entry.LastUsed = now

		c.mu.Lock()
		c.insertLocked(kb.Name, &entry)
		c.mu.Unlock()
		return &entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate evicts and releases the cached entry for name, if any. Callers
// use this after deleting a KB so a stale engine is never served again.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[name]; ok {
		e.Manager.Close()
		delete(c.entries, name)
	}
}

// insertLocked installs e under key, replacing and releasing any prior entry,
// then evicts the single oldest entry if capacity is now exceeded.
func (c *Cache) insertLocked(key string, e *Entry) {
	if old, ok := c.entries[key]; ok {
		old.Manager.Close()
	}
	c.entries[key] = e
	if len(c.entries) <= c.capacity {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, v := range c.entries {
		if first || v.CreatedAt.Before(oldestAt) {
			oldestKey, oldestAt, first = k, v.CreatedAt, false
		}
	}
	if oldestKey != "" {
		c.entries[oldestKey].Manager.Close()
		delete(c.entries, oldestKey)
	}
}

// Package cache holds, per navigable path, the ordered operation list that
// built that page, so repeat navigation replays locally without a network
// round trip. Entries are point-in-time snapshots: created once when a
// path's stream completes, never mutated, never evicted.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jamesaudcent/infinidom/vdom"
)

type entry struct {
	ops       []vdom.Operation
	createdAt int64 // epoch milliseconds
}

// PageCache maps navigable paths to the operation streams that produced
// them.
type PageCache struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewPageCache creates an empty cache.
func NewPageCache() *PageCache {
	return &PageCache{entries: make(map[string]entry)}
}

// Has reports whether a path has a cached stream.
func (c *PageCache) Has(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	return ok
}

// Get returns the cached operation list for a path, nil if absent. The
// returned slice must be treated as read-only.
func (c *PageCache) Get(path string) []vdom.Operation {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return nil
	}
	return e.ops
}

// Put records a completed stream. An empty list never creates an entry; an
// existing entry is kept as-is (a path is re-fetched, not patched).
func (c *PageCache) Put(path string, ops []vdom.Operation) {
	if len(ops) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; ok {
		return
	}
	stored := make([]vdom.Operation, len(ops))
	copy(stored, ops)
	c.entries[path] = entry{ops: stored, createdAt: time.Now().UnixMilli()}
}

// Len is the number of cached paths.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache. The caller pairs this with dropping session
// identity: the two are cleared as a unit.
func (c *PageCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// NavigateNotifier is the remote side of a cache hit: when a path is served
// locally, the server is told so its conversational context stays aligned
// with what the user is actually seeing.
type NavigateNotifier interface {
	NotifyNavigate(ctx context.Context, path string) error
}

// Notify fires the navigation notice best-effort: failures are logged and
// swallowed.
func Notify(ctx context.Context, n NavigateNotifier, path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := n.NotifyNavigate(ctx, path); err != nil {
		logger.Warn("cache: navigation notify failed", "path", path, "error", err)
	}
}

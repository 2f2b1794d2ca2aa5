// Package metacache provides a bounded, path-keyed cache of parsed definition
// file headers. Entries are invalidated by file modification time and evicted
// in FIFO order (oldest insertion first) when the cache is full.
package metacache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxEntries is the cache capacity used when none is configured.
const DefaultMaxEntries = 1000

type entry struct {
	path     string
	metadata map[string]any
	mtime    time.Time
}

// Cache is a bounded FIFO cache of header mappings keyed by file path.
// All methods are safe for concurrent use; insertion-order bookkeeping is
// guarded by a single mutex.
type Cache struct {
	mu         sync.RWMutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = oldest insertion
}

// New creates a cache holding at most maxEntries entries. Non-positive values
// fall back to DefaultMaxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the cached header mapping for path, provided the entry's stored
// modification time is not older than mtime. A stale entry is evicted on the
// spot and reported as a miss.
func (c *Cache) Get(path string, mtime time.Time) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[path]
	if !ok {
		return nil, false
	}

	e := elem.Value.(*entry)
	if mtime.After(e.mtime) {
		c.remove(path, elem)
		return nil, false
	}

	return e.metadata, true
}

// Peek returns the cached header mapping for path without any staleness check.
// Removal detection uses it to recover the last-known identifier of a file
// that no longer exists on disk.
func (c *Cache) Peek(path string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	return elem.Value.(*entry).metadata, true
}

// Put stores the header mapping for path with its observed modification time.
// When the cache is at capacity the oldest-inserted entry is evicted first.
func (c *Cache) Put(path string, metadata map[string]any, mtime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[path]; ok {
		c.remove(path, elem)
	}

	if c.order.Len() >= c.maxEntries {
		oldest := c.order.Front()
		if oldest != nil {
			c.remove(oldest.Value.(*entry).path, oldest)
		}
	}

	c.entries[path] = c.order.PushBack(&entry{path: path, metadata: metadata, mtime: mtime})
}

// Invalidate removes the entry for path unconditionally.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[path]; ok {
		c.remove(path, elem)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

func (c *Cache) remove(path string, elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, path)
}

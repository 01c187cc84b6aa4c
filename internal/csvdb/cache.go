package csvdb

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Fingerprint identifies a version of a table file's content without
// reading it.
type Fingerprint struct {
	Exists  bool
	Size    int64
	ModTime int64 // UnixNano
}

func fingerprintOf(path string) (Fingerprint, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Fingerprint{}, nil
		}
		return Fingerprint{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return Fingerprint{Exists: true, Size: fi.Size(), ModTime: fi.ModTime().UnixNano()}, nil
}

// Cache memoizes parsed tables.
//
// Entries are keyed by table path and are only served while both the cache
// generation and the file fingerprint match the ones recorded when the entry
// was parsed. There is no size bound and no TTL: the set of tables is small
// and fixed.
type Cache struct {
	mu      sync.RWMutex
	gen     uint64
	entries map[string]cacheEntry
	group   singleflight.Group

	// parses counts table parses; used by tests.
	parses int
}

type cacheEntry struct {
	gen  uint64
	fp   Fingerprint
	rows any
}

// NewCache initializes a new cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// InvalidateAll drops every cached table.
//
// Writers must call it after the new file is in place and before returning
// to their caller.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = make(map[string]cacheEntry)
}

// Generation returns the number of invalidations so far.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Parses returns how many times a table file was parsed through this cache.
func (c *Cache) Parses() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parses
}

// Load returns the rows of t, parsing the file only on a cache miss.
//
// The returned slice is a copy; callers may modify it freely. Concurrent
// misses for the same table share one parse. A parse that started before an
// invalidation is returned to its callers but never cached.
func Load[T any](c *Cache, t *Table[T]) ([]T, error) {
	fp, err := t.Fingerprint()
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	gen := c.gen
	e, ok := c.entries[t.path]
	c.mu.RUnlock()
	if ok && e.gen == gen && e.fp == fp {
		return slices.Clone(e.rows.([]T)), nil
	}

	key := t.path + "@" + strconv.FormatUint(gen, 10) + "@" + strconv.FormatInt(fp.Size, 10) + "@" + strconv.FormatInt(fp.ModTime, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		rows, err := t.Read()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.parses++
		if c.gen == gen {
			c.entries[t.path] = cacheEntry{gen: gen, fp: fp, rows: rows}
		}
		c.mu.Unlock()
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]T)), nil
}

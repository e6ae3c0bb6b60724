package filestore

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Cache holds the parsed contents of one file, keyed by its modification
// time and size. A changed stamp (or an explicit Invalidate) forces a
// reload on the next Get. Values handed out by Get are shared: callers
// must copy before mutating.
type Cache[T any] struct {
	path string
	load func(path string) (T, error)

	mu      sync.Mutex
	valid   bool
	modTime time.Time
	size    int64
	value   T
}

// NewCache creates a cache for path using load to parse it.
func NewCache[T any](path string, load func(path string) (T, error)) *Cache[T] {
	return &Cache[T]{path: path, load: load}
}

// Get returns the cached value, reloading when the file changed.
// A missing file yields load's result for a missing file (normally empty).
func (c *Cache[T]) Get() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	switch {
	case err == nil:
		if c.valid && info.ModTime().Equal(c.modTime) && info.Size() == c.size {
			return c.value, nil
		}
	case os.IsNotExist(err):
		c.valid = false
		return c.load(c.path)
	default:
		var zero T
		return zero, fmt.Errorf("filestore: stat %s: %w", c.path, err)
	}

	v, err := c.load(c.path)
	if err != nil {
		var zero T
		return zero, err
	}
	c.value = v
	c.modTime = info.ModTime()
	c.size = info.Size()
	c.valid = true
	return v, nil
}

// Invalidate drops the cached value.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	c.valid = false
	var zero T
	c.value = zero
	c.mu.Unlock()
}

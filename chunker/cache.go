package chunker

import (
	"sync"
)

type cacheKey struct {
	size    int
	overlap int
}

// Cache hands out one Splitter per (size, overlap) pair.
type Cache struct {
	separators []string

	splitters map[cacheKey]*Splitter
	mu        sync.RWMutex
}

func NewCache(separators ...string) *Cache {
	return &Cache{
		separators: separators,
		splitters:  make(map[cacheKey]*Splitter),
	}
}

func (c *Cache) Get(size, overlap int) *Splitter {
	key := cacheKey{size, overlap}

	c.mu.RLock()
	s, ok := c.splitters[key]
	c.mu.RUnlock()

	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.splitters[key]; ok {
		return s
	}

	s = New(size, overlap, c.separators...)
	c.splitters[key] = s

	return s
}

// Preload builds the splitter for (size, overlap) ahead of the first request.
func (c *Cache) Preload(size, overlap int) {
	c.Get(size, overlap)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.splitters)
}

package embedding

import (
	"container/list"
	"sync"
)

// vectorCache is a bounded LRU of embeddings keyed by the exact input text. Stored and returned
// vectors are copies so callers may modify them.
type vectorCache struct {
	mu      sync.Mutex
	limit   int
	order   *list.List
	entries map[string]*list.Element
	hits    uint64
	misses  uint64
}

type cached struct {
	text string
	vec  []float32
}

// newVectorCache returns a cache holding at most limit vectors. A limit of zero or less
// disables caching.
func newVectorCache(limit int) *vectorCache {
	return &vectorCache{
		limit:   limit,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *vectorCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return append([]float32(nil), el.Value.(*cached).vec...), true
}

func (c *vectorCache) put(text string, vec []float32) {
	if c.limit <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	vec = append([]float32(nil), vec...)
	if el, ok := c.entries[text]; ok {
		el.Value.(*cached).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.entries[text] = c.order.PushFront(&cached{text: text, vec: vec})
	for c.order.Len() > c.limit {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*cached).text)
	}
}

// stats returns the entry count and the hit and miss counters.
func (c *vectorCache) stats() (size int, hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.hits, c.misses
}

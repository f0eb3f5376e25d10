package nws

import (
	"container/list"
	"sync"
)

// pointCache remembers coordinate to grid point lookups. The API's answer
// for a coordinate does not change, so entries never expire; the least
// recently used point is dropped once the cache is full.
type pointCache struct {
	mu       sync.Mutex
	capacity int
	recency  *list.List // of *pointEntry, front is most recent
	byKey    map[string]*list.Element
}

type pointEntry struct {
	key string
	pt  gridPoint
}

func newPointCache(capacity int) *pointCache {
	return &pointCache{
		capacity: max(capacity, 1),
		recency:  list.New(),
		byKey:    make(map[string]*list.Element),
	}
}

func (c *pointCache) lookup(key string) (gridPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byKey[key]
	if !ok {
		return gridPoint{}, false
	}
	c.recency.MoveToFront(el)
	return el.Value.(*pointEntry).pt, true
}

func (c *pointCache) store(key string, pt gridPoint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byKey[key]; ok {
		el.Value.(*pointEntry).pt = pt
		c.recency.MoveToFront(el)
		return
	}
	c.byKey[key] = c.recency.PushFront(&pointEntry{key: key, pt: pt})

	for c.recency.Len() > c.capacity {
		oldest := c.recency.Back()
		c.recency.Remove(oldest)
		delete(c.byKey, oldest.Value.(*pointEntry).key)
	}
}

func (c *pointCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

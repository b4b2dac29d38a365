package serverproto

import (
	"container/list"
	"sync"
)

// classCache is the bounded, LRU-evicted mirror of the server's class
// registry SPEC_FULL.md section 5 carries forward from the original's
// classesMap: once a class name or id has been resolved once, later
// getClassId/getClassInfo calls for the same class are answered locally
// instead of round-tripping to the server. It is guarded by its own mutex,
// separate from cachetable.Table's, since class descriptors are never
// subject to server-initiated eviction the way objects and bindings are.
type classCache struct {
	mu       sync.Mutex
	maxSize  int
	order    *list.List // front = most recently used
	byName   map[string]*list.Element
	byID     map[uint64]*list.Element
}

type classCacheEntry struct {
	name string
	id   uint64
	info []byte
}

func newClassCache(maxSize int) *classCache {
	return &classCache{
		maxSize: maxSize,
		order:   list.New(),
		byName:  make(map[string]*list.Element),
		byID:    make(map[uint64]*list.Element),
	}
}

// lookupByName returns a previously resolved class id for name, if cached.
func (c *classCache) lookupByName(name string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byName[name]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*classCacheEntry).id, true
}

// lookupByID returns a previously resolved class descriptor for id, if
// cached and the descriptor itself was filled in by a prior insertInfo.
func (c *classCache) lookupByID(id uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*classCacheEntry)
	if entry.info == nil {
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.info, true
}

// insertID records the server's answer to getClassId, evicting the least
// recently used entry first if the cache is at capacity.
func (c *classCache) insertID(name string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byName[name]; ok {
		el.Value.(*classCacheEntry).id = id
		c.order.MoveToFront(el)
		c.byID[id] = el
		return
	}
	entry := &classCacheEntry{name: name, id: id}
	el := c.order.PushFront(entry)
	c.byName[name] = el
	c.byID[id] = el
	c.evictIfFull()
}

// insertInfo records the server's answer to getClassInfo against an id
// already known to the cache (or not yet known, if getClassInfo was called
// without a prior getClassId for the same class).
func (c *classCache) insertInfo(id uint64, info []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.byID[id]; ok {
		el.Value.(*classCacheEntry).info = info
		c.order.MoveToFront(el)
		return
	}
	entry := &classCacheEntry{id: id, info: info}
	el := c.order.PushFront(entry)
	c.byID[id] = el
	c.evictIfFull()
}

func (c *classCache) evictIfFull() {
	for c.order.Len() > c.maxSize {
		back := c.order.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*classCacheEntry)
		c.order.Remove(back)
		if entry.name != "" {
			delete(c.byName, entry.name)
		}
		delete(c.byID, entry.id)
	}
}

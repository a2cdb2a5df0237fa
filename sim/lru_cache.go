// sim/lru_cache.go
package sim

// cacheEntry is a node of the recency list.
type cacheEntry struct {
	Tile TileID
	Prev *cacheEntry // toward the least-recent end
	Next *cacheEntry // toward the most-recent end
}

// AccessResult is the outcome of one cache access.
type AccessResult struct {
	Hit     bool
	Evicted *TileID // set when a miss pushed the cache over capacity
}

// LRUCache is the shared, capacity-bounded cache of input tiles.
// A- and B-tiles share one recency order and one eviction policy.
//
// Entries live in a doubly linked list ordered oldest (Head) to most recent
// (Tail), indexed by a map for O(1) lookup.
//
// Thread-safety: NOT thread-safe. The owning Simulator serializes access.
type LRUCache struct {
	capacity int
	entries  map[TileID]*cacheEntry
	head     *cacheEntry // least recently used
	tail     *cacheEntry // most recently used
}

// maxSizeHint bounds map preallocation; capacities far above the number of
// distinct tiles are common.
const maxSizeHint = 1024

// NewLRUCache returns an empty cache holding at most capacity tiles.
// Capacity is fixed for the lifetime of the cache.
func NewLRUCache(capacity int) *LRUCache {
	return newLRUCache(capacity, min(capacity+1, maxSizeHint))
}

func newLRUCache(capacity, sizeHint int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[TileID]*cacheEntry, max(sizeHint, 0)),
	}
}

// appendEntry inserts an entry at the most-recent end.
func (c *LRUCache) appendEntry(e *cacheEntry) {
	e.Next = nil
	// either both head and tail are nil, or neither is
	if c.tail != nil {
		c.tail.Next = e
		e.Prev = c.tail
		c.tail = e
	} else {
		c.head = e
		c.tail = e
		e.Prev = nil
	}
}

// unlink detaches an entry from the recency list.
func (c *LRUCache) unlink(e *cacheEntry) {
	if e.Prev != nil {
		// a - e - b => a - b
		e.Prev.Next = e.Next
	} else {
		// e - b => b
		c.head = e.Next
	}
	if e.Next != nil {
		e.Next.Prev = e.Prev
	} else {
		// a - e => a
		c.tail = e.Prev
	}
	e.Next = nil
	e.Prev = nil
}

// Access looks up a tile and updates recency.
// On a hit the tile becomes most recent. On a miss it is inserted as most
// recent and, if that exceeds capacity, the single least-recent tile is evicted.
func (c *LRUCache) Access(tile TileID) AccessResult {
	if e, ok := c.entries[tile]; ok {
		c.unlink(e)
		c.appendEntry(e)
		return AccessResult{Hit: true}
	}

	e := &cacheEntry{Tile: tile}
	c.entries[tile] = e
	c.appendEntry(e)

	if len(c.entries) <= c.capacity {
		return AccessResult{}
	}
	victim := c.head
	c.unlink(victim)
	delete(c.entries, victim.Tile)
	evicted := victim.Tile
	return AccessResult{Evicted: &evicted}
}

// Contains reports whether the tile is resident without touching recency.
func (c *LRUCache) Contains(tile TileID) bool {
	_, ok := c.entries[tile]
	return ok
}

// Len returns the number of resident tiles.
func (c *LRUCache) Len() int {
	return len(c.entries)
}

// Capacity returns the maximum number of resident tiles.
func (c *LRUCache) Capacity() int {
	return c.capacity
}

// Contents returns resident tiles ordered oldest first.
func (c *LRUCache) Contents() []TileID {
	out := make([]TileID, 0, len(c.entries))
	for e := c.head; e != nil; e = e.Next {
		out = append(out, e.Tile)
	}
	return out
}

// Clone returns an independent copy with the same contents and recency order.
func (c *LRUCache) Clone() *LRUCache {
	// Sized by occupancy, not capacity: Advance clones on every step.
	clone := newLRUCache(c.capacity, len(c.entries)+1)
	for e := c.head; e != nil; e = e.Next {
		ne := &cacheEntry{Tile: e.Tile}
		clone.entries[e.Tile] = ne
		clone.appendEntry(ne)
	}
	return clone
}

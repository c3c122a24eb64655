package pgwire

import (
	"container/list"
	"hash/fnv"
	"sync"

	"github.com/sqlgateway/pgadapter/pkg/classify"
)

// StatementCache caches classify.Classify results by query text, shared
// process-wide across sessions rather than per connection. Classifying a
// statement walks its SQL text token by token; a pooled client sends the
// same handful of query texts (an ORM's generated statements, a driver's
// health-check SELECT 1) across many short-lived sessions, so this pays
// the classification cost once per distinct query rather than once per
// Parse.
type StatementCache struct {
	mu sync.Mutex

	byHash map[uint64]*classify.Statement
	lru    *list.List
	lruMap map[uint64]*list.Element

	maxSize int
}

// HashQuery computes a cache key for a query string. FNV-1a is fast and
// distributes well at this key-space size.
func HashQuery(query string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(query))
	return h.Sum64()
}

// NewStatementCache creates a cache holding at most maxSize entries.
// maxSize of 0 means unlimited.
func NewStatementCache(maxSize int) *StatementCache {
	return &StatementCache{
		byHash:  make(map[uint64]*classify.Statement),
		lru:     list.New(),
		lruMap:  make(map[uint64]*list.Element),
		maxSize: maxSize,
	}
}

// Get returns the cached classification of query, if present, marking it
// most recently used.
func (c *StatementCache) Get(query string) (*classify.Statement, bool) {
	hash := HashQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	stmt, ok := c.byHash[hash]
	if ok {
		c.lru.MoveToFront(c.lruMap[hash])
	}
	return stmt, ok
}

// Put adds or replaces the cached classification for query, evicting the
// least recently used entry first if the cache is at capacity.
func (c *StatementCache) Put(query string, stmt *classify.Statement) {
	hash := HashQuery(query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.lruMap[hash]; ok {
		c.byHash[hash] = stmt
		c.lru.MoveToFront(elem)
		return
	}

	if c.maxSize > 0 && len(c.byHash) >= c.maxSize {
		c.evictOldest()
	}

	c.byHash[hash] = stmt
	c.lruMap[hash] = c.lru.PushFront(hash)
}

// Len returns the number of cached statements.
func (c *StatementCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byHash)
}

// Clear removes every cached statement.
func (c *StatementCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byHash = make(map[uint64]*classify.Statement)
	c.lru.Init()
	c.lruMap = make(map[uint64]*list.Element)
}

// evictOldest removes the least recently used entry. Caller must hold mu.
func (c *StatementCache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	hash := elem.Value.(uint64)
	c.lru.Remove(elem)
	delete(c.lruMap, hash)
	delete(c.byHash, hash)
}

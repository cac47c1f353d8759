package service

import (
	"encoding/binary"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry struct {
	key    uint64
	result rule.ValidationResult
	prev   *lruEntry
	next   *lruEntry
}

// ResultCache provides bounded LRU caching for validation results.
// Thread-safe with Mutex (both Get and Put mutate LRU order).
type ResultCache struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry
	head    *lruEntry // most recently used
	tail    *lruEntry // least recently used
	maxSize int
}

// NewResultCache creates a new LRU cache with the given max size.
func NewResultCache(maxSize int) *ResultCache {
	return &ResultCache{
		entries: make(map[uint64]*lruEntry, maxSize),
		maxSize: maxSize,
	}
}

// Get retrieves a cached result. On hit the entry is promoted to most
// recently used.
func (c *ResultCache) Get(key uint64) (rule.ValidationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.result, true
	}
	return rule.ValidationResult{}, false
}

// Put stores a result, evicting the least recently used entry at capacity.
func (c *ResultCache) Put(key uint64, result rule.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.result = result
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry{key: key, result: result}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Clear empties the cache. Called on every rule-set mutation or reload.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry, c.maxSize)
	c.head = nil
	c.tail = nil
}

// Size returns the current cache size.
func (c *ResultCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ResultCache) moveToHeadLocked(e *lruEntry) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

func (c *ResultCache) pushHeadLocked(e *lruEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *ResultCache) unlinkLocked(e *lruEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *ResultCache) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// computeCacheKey hashes the snapshot generation and the evaluation-relevant
// context fields. Roles are sorted so role order does not fragment the cache;
// the generation keys verdicts to the rule set they were computed against.
func computeCacheKey(gen uint64, execCtx rule.ExecutionContext) uint64 {
	h := xxhash.New()

	var genBytes [8]byte
	binary.LittleEndian.PutUint64(genBytes[:], gen)
	_, _ = h.Write(genBytes[:])

	_, _ = h.WriteString(execCtx.AgentID)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(execCtx.AgentType)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(execCtx.Action)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(execCtx.User.ID)
	_, _ = h.Write([]byte{0})

	sortedRoles := make([]string, len(execCtx.User.Roles))
	copy(sortedRoles, execCtx.User.Roles)
	sort.Strings(sortedRoles)
	_, _ = h.WriteString(strings.Join(sortedRoles, ","))
	_, _ = h.Write([]byte{0})

	if execCtx.Project != nil {
		_, _ = h.WriteString(execCtx.Project.Name)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(execCtx.Project.Category)
	}
	_, _ = h.Write([]byte{0})

	if len(execCtx.Data) > 0 {
		dataJSON, _ := json.Marshal(execCtx.Data)
		_, _ = h.Write(dataJSON)
	}

	return h.Sum64()
}

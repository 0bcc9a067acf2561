// Package accountcache implements C3: a process-wide mapping from
// InternalAccountID to hot per-account state, backed by the durable stores
// owned by the other components (SPEC_FULL.md §4.3).
package accountcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/identity"
)

// Entry is the hot state held per account. Each entry is mutated under its
// own RWMutex — the lock is never held across a blocking call except for
// the short critical sections documented in SPEC_FULL.md §5.
type Entry struct {
	mu sync.RWMutex

	InternalID        identity.InternalAccountID
	LastSeen          time.Time
	BoundChannel      string // empty when no live channel
	ReceivedLikes     int64
	Capabilities      identity.Permission
	PendingNotifyMask uint64
	LocationBucket    string

	listElem *list.Element // LRU position; nil while a live channel is bound
}

func (e *Entry) HasLiveChannel() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.BoundChannel != ""
}

func (e *Entry) HasCapability(p identity.Permission) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return p.In(e.Capabilities)
}

func (e *Entry) SetBoundChannel(handle string) {
	e.mu.Lock()
	e.BoundChannel = handle
	e.mu.Unlock()
}

func (e *Entry) Touch() {
	e.mu.Lock()
	e.LastSeen = time.Now()
	e.mu.Unlock()
}

func (e *Entry) SetPendingNotify(bit uint64) {
	e.mu.Lock()
	e.PendingNotifyMask |= bit
	e.mu.Unlock()
}

func (e *Entry) DrainPendingNotify() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	mask := e.PendingNotifyMask
	e.PendingNotifyMask = 0
	return mask
}

// Loader populates a fresh Entry on a cache miss (lazy population on first
// reference and on login, per SPEC_FULL.md §4.3).
type Loader func(id identity.InternalAccountID) (*Entry, error)

// Cache is the account cache. Eviction never touches an entry with a live
// channel; otherwise it is LRU with a configurable ceiling.
type Cache struct {
	mu      sync.Mutex
	entries map[identity.InternalAccountID]*Entry
	lru     *list.List // front = most recently used
	ceiling int
	load    Loader
}

func New(ceiling int, load Loader) *Cache {
	return &Cache{
		entries: make(map[identity.InternalAccountID]*Entry),
		lru:     list.New(),
		ceiling: ceiling,
		load:    load,
	}
}

// Get returns the entry for id, loading it via Loader on a miss.
func (c *Cache) Get(id identity.InternalAccountID) (*Entry, error) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.touchLRU(e)
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	e, err := c.load(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[id]; ok {
		c.touchLRU(existing)
		return existing, nil
	}
	c.entries[id] = e
	c.touchLRU(e)
	c.evictIfNeeded()
	return e, nil
}

// Peek returns the entry only if already resident, without loading.
func (c *Cache) Peek(id identity.InternalAccountID) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

func (c *Cache) touchLRU(e *Entry) {
	if e.HasLiveChannel() {
		if e.listElem != nil {
			c.lru.Remove(e.listElem)
			e.listElem = nil
		}
		return
	}
	if e.listElem != nil {
		c.lru.MoveToFront(e.listElem)
	} else {
		e.listElem = c.lru.PushFront(e.InternalID)
	}
}

// evictIfNeeded drops least-recently-used entries without a live channel
// until the cache is back under its ceiling. Must be called with c.mu held.
func (c *Cache) evictIfNeeded() {
	if c.ceiling <= 0 {
		return
	}
	for len(c.entries) > c.ceiling {
		back := c.lru.Back()
		if back == nil {
			return
		}
		id := back.Value.(identity.InternalAccountID)
		c.lru.Remove(back)
		if e, ok := c.entries[id]; ok && e.HasLiveChannel() {
			e.listElem = nil
			continue
		}
		delete(c.entries, id)
	}
}

// Invalidate forcibly drops an entry (used after an account deletion).
func (c *Cache) Invalidate(id identity.InternalAccountID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		if e.listElem != nil {
			c.lru.Remove(e.listElem)
		}
		delete(c.entries, id)
	}
}

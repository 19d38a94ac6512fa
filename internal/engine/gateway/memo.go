package gateway

import (
	"container/list"
	"sync"
	"sync/atomic"
)

const DefaultMemoCapacity = 4096

const (
	contentPrefix = "content:"
	typesPrefix   = "types:"
)

// ContentKey is the cache key of a file body.
func ContentKey(url string) string { return contentPrefix + url }

// TypesKey is the cache key of a package's declaration entry URL.
func TypesKey(url string) string { return typesPrefix + url }

// Memo is the in-process lookup cache shared by every resolution that is
// handed the same instance. It is a thread-safe, capacity-bounded LRU; when
// full the least-recently-used entry is evicted.
type Memo struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most-recently used

	hits   atomic.Uint64
	misses atomic.Uint64
}

type memoEntry struct {
	key   string
	value string
}

// MemoStats is a point-in-time view of memo usage.
type MemoStats struct {
	Len      int
	Capacity int
	Hits     uint64
	Misses   uint64
}

// NewMemo creates a memo holding at most capacity entries; values <= 0 use
// DefaultMemoCapacity.
func NewMemo(capacity int) *Memo {
	if capacity <= 0 {
		capacity = DefaultMemoCapacity
	}
	return &Memo{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (m *Memo) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		m.misses.Add(1)
		return "", false
	}
	m.hits.Add(1)
	m.order.MoveToFront(el)
	return el.Value.(*memoEntry).value, true
}

func (m *Memo) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		m.order.MoveToFront(el)
		el.Value.(*memoEntry).value = value
		return
	}
	if m.order.Len() >= m.capacity {
		m.evictLeastRecentLocked()
	}
	m.items[key] = m.order.PushFront(&memoEntry{key: key, value: value})
}

func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Clear drops every entry and resets the counters.
func (m *Memo) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.items = make(map[string]*list.Element)
	m.hits.Store(0)
	m.misses.Store(0)
}

func (m *Memo) Stats() MemoStats {
	return MemoStats{
		Len:      m.Len(),
		Capacity: m.capacity,
		Hits:     m.hits.Load(),
		Misses:   m.misses.Load(),
	}
}

// evictLeastRecentLocked removes the back element. Caller must hold m.mu.
func (m *Memo) evictLeastRecentLocked() {
	back := m.order.Back()
	if back == nil {
		return
	}
	m.order.Remove(back)
	delete(m.items, back.Value.(*memoEntry).key)
}

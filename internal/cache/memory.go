package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with TTL expiry and LRU eviction once
// capacity is reached.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently written
	now      func() time.Time
}

type memoryItem struct {
	key     string
	value   []byte
	expires time.Time
}

// NewMemoryStore creates a store holding at most capacity keys. A
// non-positive capacity means unbounded.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Set stores a copy of value under key.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &memoryItem{
		key:     key,
		value:   append([]byte(nil), value...),
		expires: m.now().Add(ttl),
	}

	if el, ok := m.items[key]; ok {
		el.Value = item
		m.order.MoveToFront(el)
		return nil
	}

	m.items[key] = m.order.PushFront(item)
	if m.capacity > 0 {
		for m.order.Len() > m.capacity {
			m.remove(m.order.Back())
		}
	}
	return nil
}

// Take returns and removes the value under key.
func (m *MemoryStore) Take(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	item := el.Value.(*memoryItem)
	m.remove(el)
	if m.now().After(item.expires) {
		return nil, false, nil
	}
	return item.value, true, nil
}

// Delete removes keys.
func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if el, ok := m.items[k]; ok {
			m.remove(el)
		}
	}
	return nil
}

// Len returns the number of stored keys, expired ones included until they
// are touched or swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Sweep drops expired keys and returns how many were removed.
func (m *MemoryStore) Sweep(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for el := m.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*memoryItem).expires) {
			m.remove(el)
			n++
		}
		el = prev
	}
	return n, nil
}

func (m *MemoryStore) remove(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryItem).key)
}

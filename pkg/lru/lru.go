// Package lru implements a generic, byte-accounted, sharded LRU cache.
//
// It was originally a thin wrapper the storage bucket layer reached for
// (pkg/algorithm/lru in the older tree); this version keeps the same
// Set/Get/Has/Remove/EvictionChannel shape but adds explicit byte
// accounting so a single cache instance can be bounded by capacity in
// bytes rather than entry count, which the L1 tier needs.
package lru

import (
	"container/list"
	"sync"
)

// Evicted describes an entry removed from the cache, delivered on the
// EvictionChannel so callers can react (e.g. free L2-only bookkeeping).
type Evicted[K comparable, V any] struct {
	Key   K
	Value V
}

type entry[K comparable, V any] struct {
	key   K
	value V
	size  int64
}

type shard[K comparable, V any] struct {
	mu        sync.Mutex
	ll        *list.List
	items     map[K]*list.Element
	usedBytes int64
}

// Cache is a sharded, byte-bounded LRU. Sharding bounds lock contention
// under concurrent readers/writers of distinct keys; a single key is
// always routed to the same shard so per-key recency stays correct.
type Cache[K comparable, V any] struct {
	shards    []*shard[K, V]
	mask      uint64
	capBytes  int64 // per-shard byte capacity
	sizeOf    func(V) int64
	hashKey   func(K) uint64
	evictions chan Evicted[K, V]
}

// Option configures a Cache at construction.
type Option[K comparable, V any] func(*Cache[K, V])

// WithEvictionChannel delivers evicted entries on ch. The channel is
// never blocked on indefinitely: sends are best-effort via a non-blocking
// select so eviction, which happens under the shard's critical section,
// never stalls on a slow or absent consumer.
func WithEvictionChannel[K comparable, V any](ch chan Evicted[K, V]) Option[K, V] {
	return func(c *Cache[K, V]) { c.evictions = ch }
}

// New builds a Cache with the given number of shards and total byte
// capacity (split evenly across shards), measuring each value's size
// with sizeOf and routing keys to shards with hashKey.
func New[K comparable, V any](shards int, totalCapBytes int64, sizeOf func(V) int64, hashKey func(K) uint64, opts ...Option[K, V]) *Cache[K, V] {
	if shards < 1 {
		shards = 1
	}
	c := &Cache[K, V]{
		shards:   make([]*shard[K, V], shards),
		mask:     uint64(shards - 1),
		capBytes: totalCapBytes / int64(shards),
		sizeOf:   sizeOf,
		hashKey:  hashKey,
	}
	// shards must be a power of two for the mask trick; round up.
	n := 1
	for n < shards {
		n <<= 1
	}
	if n != shards {
		c.shards = make([]*shard[K, V], n)
		c.mask = uint64(n - 1)
		c.capBytes = totalCapBytes / int64(n)
	}
	for i := range c.shards {
		c.shards[i] = &shard[K, V]{
			ll:    list.New(),
			items: make(map[K]*list.Element),
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache[K, V]) shardFor(key K) *shard[K, V] {
	return c.shards[c.hashKey(key)&c.mask]
}

// Get returns the value for key and promotes it to most-recently-used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	s.ll.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Has reports presence without affecting recency.
func (c *Cache[K, V]) Has(key K) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Set inserts or replaces key's value, evicting least-recently-used
// entries from the same shard until the new entry fits within the
// shard's byte budget. A value whose own size exceeds one shard's
// capacity (the total capacity divided by the shard count) is rejected
// (admission failure), even when it would fit within the total capacity.
func (c *Cache[K, V]) Set(key K, value V) bool {
	size := c.sizeOf(value)
	s := c.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if size > c.capBytes {
		return false
	}

	if el, ok := s.items[key]; ok {
		old := el.Value.(*entry[K, V])
		s.usedBytes -= old.size
		old.value = value
		old.size = size
		s.usedBytes += size
		s.ll.MoveToFront(el)
		return true
	}

	for s.usedBytes+size > c.capBytes {
		back := s.ll.Back()
		if back == nil {
			break
		}
		s.removeElement(back, c.evictions)
	}

	el := s.ll.PushFront(&entry[K, V]{key: key, value: value, size: size})
	s.items[key] = el
	s.usedBytes += size
	return true
}

// Remove drops key if present, returning whether it was.
func (c *Cache[K, V]) Remove(key K) bool {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return false
	}
	s.removeElement(el, nil)
	return true
}

func (s *shard[K, V]) removeElement(el *list.Element, evictions chan Evicted[K, V]) {
	e := el.Value.(*entry[K, V])
	s.ll.Remove(el)
	delete(s.items, e.key)
	s.usedBytes -= e.size

	if evictions != nil {
		select {
		case evictions <- Evicted[K, V]{Key: e.key, Value: e.value}:
		default:
		}
	}
}

// ForEach calls fn for every entry currently in the cache, across all
// shards, without affecting recency. fn must not call back into the
// cache: ForEach holds each shard's lock for the duration of its pass.
func (c *Cache[K, V]) ForEach(fn func(K, V)) {
	for _, s := range c.shards {
		s.mu.Lock()
		for _, el := range s.items {
			e := el.Value.(*entry[K, V])
			fn(e.key, e.value)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of entries across all shards.
func (c *Cache[K, V]) Len() int {
	n := 0
	for _, s := range c.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// UsedBytes returns the total bytes accounted for across all shards.
func (c *Cache[K, V]) UsedBytes() int64 {
	var n int64
	for _, s := range c.shards {
		s.mu.Lock()
		n += s.usedBytes
		s.mu.Unlock()
	}
	return n
}

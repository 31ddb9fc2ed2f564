// Package cache is the C8 slice cache façade: a two-tier (L1 memory,
// L2 raw-block) store addressed by Key, composing cache/l1 over
// cache/l2. Grounded on the teacher's nativeStorage (storage/storage.go),
// which composes a selector over an open set of typed buckets — here
// specialized to exactly the two fixed tiers the spec names.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/omalloc/tavern/cache/cachekey"
	"github.com/omalloc/tavern/cache/l1"
	"github.com/omalloc/tavern/cache/l2"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/pkg/lru"
	"github.com/omalloc/tavern/pkg/rangehdr"
)

// Key is the façade's public alias of cache/cachekey.Key. Both tiers
// import cachekey directly (a leaf package with no dependency on this
// façade), so the façade re-exports the same type here rather than each
// tier depending back on cache.
type Key = cachekey.Key

// KeyHashSize is the width of the URL-hash component of a Key.
const KeyHashSize = cachekey.HashSize

// NewKey derives the cache key for a slice of the given normalized URL.
func NewKey(normalizedURL string, r rangehdr.ByteRange) Key {
	return cachekey.New(normalizedURL, r)
}

// Cache is the slice cache façade used by the rest of the tree.
type Cache interface {
	Lookup(key Key) ([]byte, bool)
	LookupMany(keys []Key) map[Key][]byte
	View(key Key) (*l2.View, bool)
	Store(key Key, body []byte) error
	Purge(normalizedURL string) int
	PurgeAll() int
	Close(ctx context.Context) error
}

// Config configures both tiers in one place; see conf.Slicing.
type Config struct {
	L1Bytes  int64
	L1Shards int
	L2       l2.Config
	TTL      time.Duration
}

type twoTier struct {
	l1  *l1.Tier
	l2  *l2.Tier
	ttl time.Duration
	log *log.Helper
}

// New builds the two-tier cache. cfg.L2.DevicePath == "" disables the L2
// tier entirely (L1-only deployments, e.g. tests).
func New(cfg Config, logger *log.Helper) (Cache, error) {
	shards := cfg.L1Shards
	if shards <= 0 {
		shards = l1.DefaultShards
	}

	evictions := make(chan lru.Evicted[Key, []byte], 64)
	l1Tier := l1.New(shards, cfg.L1Bytes, evictions)

	t := &twoTier{l1: l1Tier, ttl: cfg.TTL, log: logger}

	if cfg.L2.DevicePath != "" {
		l2Tier, err := l2.Open(cfg.L2, logger)
		if err != nil {
			return nil, err
		}
		t.l2 = l2Tier

		// Demote L1 evictions into L2 instead of discarding them outright,
		// so a slice that falls out of memory can still serve from disk.
		go func() {
			for ev := range evictions {
				if err := t.l2.Store(ev.Key, ev.Value, t.ttl); err != nil {
					t.log.Warnf("failed to demote evicted slice %s into l2: %v", ev.Key, err)
				}
			}
		}()
	}

	return t, nil
}

// Lookup checks L1 first, then L2, promoting an L2 hit back into L1.
func (t *twoTier) Lookup(key Key) ([]byte, bool) {
	if body, ok := t.l1.Lookup(key); ok {
		return body, true
	}
	if t.l2 == nil {
		return nil, false
	}
	body, ok := t.l2.Lookup(key)
	if !ok {
		return nil, false
	}
	t.l1.Store(key, body)
	return body, true
}

// LookupMany resolves a batch of slice keys in one call, returning only
// the keys found. The orchestrator does not use it; it resolves each
// slice with Lookup.
func (t *twoTier) LookupMany(keys []Key) map[Key][]byte {
	out := make(map[Key][]byte, len(keys))
	for _, k := range keys {
		if body, ok := t.Lookup(k); ok {
			out[k] = body
		}
	}
	return out
}

// View returns a zero-copy handle onto an L2-resident, uncompressed
// single-block entry, used by the zero-copy read path (C12). There is no
// L1 zero-copy path: L1 bodies are plain heap []byte already owned by the
// cache, so Lookup is the zero-copy-equivalent access there.
func (t *twoTier) View(key Key) (*l2.View, bool) {
	if t.l2 == nil {
		return nil, false
	}
	return t.l2.View(key)
}

// Store writes body into L1, and into L2 when the cache TTL is positive.
func (t *twoTier) Store(key Key, body []byte) error {
	t.l1.Store(key, body)
	if t.l2 == nil || t.ttl <= 0 {
		return nil
	}
	return t.l2.Store(key, body, t.ttl)
}

// Purge removes every slice whose key was derived from normalizedURL,
// across both tiers, returning the number of slices removed.
func (t *twoTier) Purge(normalizedURL string) int {
	var toRemove []Key

	t.l1.ForEach(func(k Key, _ []byte) {
		if k.HasURLPrefix(normalizedURL) {
			toRemove = append(toRemove, k)
		}
	})
	if t.l2 != nil {
		t.l2.ForEach(func(k Key) {
			if k.HasURLPrefix(normalizedURL) {
				toRemove = append(toRemove, k)
			}
		})
	}

	seen := make(map[Key]struct{}, len(toRemove))
	count := 0
	for _, k := range toRemove {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		removedL1 := t.l1.Remove(k)
		removedL2 := false
		if t.l2 != nil {
			removedL2 = t.l2.Remove(k)
		}
		if removedL1 || removedL2 {
			count++
		}
	}
	return count
}

// PurgeAll empties both tiers unconditionally (bulk purge control plane).
func (t *twoTier) PurgeAll() int {
	var keys []Key
	t.l1.ForEach(func(k Key, _ []byte) { keys = append(keys, k) })
	if t.l2 != nil {
		t.l2.ForEach(func(k Key) { keys = append(keys, k) })
	}

	seen := make(map[Key]struct{}, len(keys))
	count := 0
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		removedL1 := t.l1.Remove(k)
		removedL2 := false
		if t.l2 != nil {
			removedL2 = t.l2.Remove(k)
		}
		if removedL1 || removedL2 {
			count++
		}
	}
	return count
}

func (t *twoTier) Close(ctx context.Context) error {
	if t.l2 == nil {
		return nil
	}
	return t.l2.Close(ctx)
}

var (
	mu      sync.Mutex
	current Cache
)

// SetDefault installs the process-wide cache instance, mirroring the
// teacher's storage.SetDefault singleton pattern.
func SetDefault(c Cache) {
	mu.Lock()
	defer mu.Unlock()
	current = c
}

// Current returns the process-wide cache instance.
func Current() Cache {
	mu.Lock()
	defer mu.Unlock()
	return current
}

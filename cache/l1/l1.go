// Package l1 implements the bounded in-memory LRU tier (C9): strict
// recency, byte-accounted admission, and eviction notification so the
// façade can decide whether an evicted body is still reachable via L2.
package l1

import (
	"hash/maphash"

	"github.com/omalloc/tavern/cache/cachekey"
	"github.com/omalloc/tavern/pkg/lru"
)

// DefaultShards is the default shard count; cache.New uses it when
// Config.L1Shards is not set. New takes the count as a parameter rather
// than reading it from runtime here so tests can pin it.
const DefaultShards = 16

// Tier is the L1 memory tier.
type Tier struct {
	lru  *lru.Cache[cachekey.Key, []byte]
	seed maphash.Seed
}

// New builds an L1 tier bounded by capBytes total, split across shards.
// Evicted entries are published on evictions (non-blocking sends; nil is
// accepted and simply disables notification).
func New(shards int, capBytes int64, evictions chan lru.Evicted[cachekey.Key, []byte]) *Tier {
	t := &Tier{seed: maphash.MakeSeed()}
	hashKey := func(k cachekey.Key) uint64 {
		var h maphash.Hash
		h.SetSeed(t.seed)
		s := k.String()
		_, _ = h.WriteString(s)
		return h.Sum64()
	}
	sizeOf := func(b []byte) int64 { return int64(len(b)) }

	var opts []lru.Option[cachekey.Key, []byte]
	if evictions != nil {
		opts = append(opts, lru.WithEvictionChannel(evictions))
	}
	t.lru = lru.New(shards, capBytes, sizeOf, hashKey, opts...)
	return t
}

// Lookup returns the cached body for key, promoting recency on hit.
func (t *Tier) Lookup(key cachekey.Key) ([]byte, bool) {
	return t.lru.Get(key)
}

// Store admits body under key, evicting LRU entries from the same shard
// as needed. Returns false if body alone exceeds the shard's capacity —
// the façade does not treat this as an error, only as "L1 declined".
func (t *Tier) Store(key cachekey.Key, body []byte) bool {
	return t.lru.Set(key, body)
}

// Remove purges a single key from L1.
func (t *Tier) Remove(key cachekey.Key) bool {
	return t.lru.Remove(key)
}

// ForEach visits every resident key, used by the façade's URL-prefix
// purge to find every slice of a given object without a secondary index.
func (t *Tier) ForEach(fn func(cachekey.Key, []byte)) {
	t.lru.ForEach(fn)
}

// Len and UsedBytes support metrics and tests.
func (t *Tier) Len() int         { return t.lru.Len() }
func (t *Tier) UsedBytes() int64 { return t.lru.UsedBytes() }

package l1

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omalloc/tavern/cache/cachekey"
	"github.com/omalloc/tavern/pkg/lru"
	"github.com/omalloc/tavern/pkg/rangehdr"
)

func TestTierStoreLookup(t *testing.T) {
	tier := New(DefaultShards, 1<<20, nil)

	key := cachekey.New("http://origin/obj", rangehdr.ByteRange{Start: 0, End: 99})
	assert.True(t, tier.Store(key, []byte("payload")))

	got, ok := tier.Lookup(key)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), got)
}

func TestTierEviction(t *testing.T) {
	evictions := make(chan lru.Evicted[cachekey.Key, []byte], 4)
	tier := New(1, 10, evictions)

	k1 := cachekey.New("http://origin/a", rangehdr.ByteRange{Start: 0, End: 0})
	k2 := cachekey.New("http://origin/b", rangehdr.ByteRange{Start: 0, End: 0})

	tier.Store(k1, []byte("12345"))
	tier.Store(k2, []byte("12345"))
	tier.Lookup(k1)
	tier.Store(cachekey.New("http://origin/c", rangehdr.ByteRange{Start: 0, End: 0}), []byte("12345"))

	_, ok := tier.Lookup(k2)
	assert.False(t, ok)
}

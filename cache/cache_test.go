package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/tavern/cache/l2"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/pkg/rangehdr"
)

func rangeOf(start, end int64) rangehdr.ByteRange {
	return rangehdr.ByteRange{Start: start, End: end}
}

func newTestCache(t *testing.T, withL2 bool) Cache {
	t.Helper()
	cfg := Config{L1Bytes: 1 << 16, TTL: time.Hour}
	if withL2 {
		cfg.L2 = l2.Config{DevicePath: t.TempDir(), TotalSize: 1 << 20, BlockSize: 4096}
	}
	c, err := New(cfg, log.NewHelper(log.DefaultLogger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestCache_StoreAndLookupL1Only(t *testing.T) {
	c := newTestCache(t, false)
	key := NewKey("https://example.test/a", rangeOf(0, 9))

	require.NoError(t, c.Store(key, []byte("0123456789")))
	body, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "0123456789", string(body))
}

func TestCache_L2ViewUnavailableWithoutL2(t *testing.T) {
	c := newTestCache(t, false)
	key := NewKey("https://example.test/a", rangeOf(0, 9))
	require.NoError(t, c.Store(key, []byte("0123456789")))

	_, ok := c.View(key)
	assert.False(t, ok)
}

func TestCache_ViewServesFromL2(t *testing.T) {
	c := newTestCache(t, true)
	key := NewKey("https://example.test/a", rangeOf(0, 9))
	require.NoError(t, c.Store(key, []byte("0123456789")))

	view, ok := c.View(key)
	require.True(t, ok)
	assert.Equal(t, "0123456789", string(view.Bytes()))
	view.Release()
}

func TestCache_LookupMany(t *testing.T) {
	c := newTestCache(t, false)
	k1 := NewKey("https://example.test/a", rangeOf(0, 9))
	k2 := NewKey("https://example.test/b", rangeOf(0, 9))
	require.NoError(t, c.Store(k1, []byte("aaaaaaaaaa")))

	got := c.LookupMany([]Key{k1, k2})
	assert.Len(t, got, 1)
	assert.Equal(t, "aaaaaaaaaa", string(got[k1]))
}

func TestCache_PurgeRemovesOnlyMatchingURL(t *testing.T) {
	c := newTestCache(t, true)
	k1 := NewKey("https://example.test/a", rangeOf(0, 9))
	k2 := NewKey("https://example.test/a", rangeOf(10, 19))
	k3 := NewKey("https://example.test/b", rangeOf(0, 9))
	require.NoError(t, c.Store(k1, []byte("aaaaaaaaaa")))
	require.NoError(t, c.Store(k2, []byte("bbbbbbbbbb")))
	require.NoError(t, c.Store(k3, []byte("cccccccccc")))

	n := c.Purge("https://example.test/a")
	assert.Equal(t, 2, n)

	_, ok := c.Lookup(k1)
	assert.False(t, ok)
	_, ok = c.Lookup(k3)
	assert.True(t, ok)
}

func TestCache_PurgeAllEmptiesBothTiers(t *testing.T) {
	c := newTestCache(t, true)
	k1 := NewKey("https://example.test/a", rangeOf(0, 9))
	k2 := NewKey("https://example.test/b", rangeOf(0, 9))
	require.NoError(t, c.Store(k1, []byte("aaaaaaaaaa")))
	require.NoError(t, c.Store(k2, []byte("bbbbbbbbbb")))

	n := c.PurgeAll()
	assert.Equal(t, 2, n)

	_, ok := c.Lookup(k1)
	assert.False(t, ok)
	_, ok = c.Lookup(k2)
	assert.False(t, ok)
}

func TestCache_SurvivesInL2WhenL1DeclinesAdmission(t *testing.T) {
	// A near-zero per-shard L1 capacity makes l1.Tier.Store decline the
	// body outright; the façade must still have written it through to
	// L2, so Lookup still succeeds.
	cfg := Config{L1Bytes: 1, L2: l2.Config{DevicePath: t.TempDir(), TotalSize: 1 << 20, BlockSize: 4096}, TTL: time.Hour}
	c, err := New(cfg, log.NewHelper(log.DefaultLogger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	key := NewKey("https://example.test/evict", rangeOf(0, 19))
	require.NoError(t, c.Store(key, []byte("twenty-byte-value!!")))

	body, ok := c.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "twenty-byte-value!!", string(body))
}

func TestSetDefaultAndCurrent(t *testing.T) {
	c := newTestCache(t, false)
	SetDefault(c)
	assert.Same(t, c, Current())
}

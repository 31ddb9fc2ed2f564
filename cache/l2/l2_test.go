package l2

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/tavern/cache/cachekey"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/pkg/rangehdr"
)

func rangeOf(start, end int64) rangehdr.ByteRange {
	return rangehdr.ByteRange{Start: start, End: end}
}

func newTestTier(t *testing.T, cfg Config) *Tier {
	t.Helper()
	cfg.DevicePath = t.TempDir()
	if cfg.TotalSize == 0 {
		cfg.TotalSize = 1 << 20
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 4096
	}
	tier, err := Open(cfg, log.NewHelper(log.DefaultLogger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tier.Close(context.Background()) })
	return tier
}

func TestTier_StoreAndLookup(t *testing.T) {
	tier := newTestTier(t, Config{})
	key := cachekey.New("https://example.test/a", rangeOf(0, 99))

	require.NoError(t, tier.Store(key, []byte("hello world"), time.Hour))

	body, ok := tier.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "hello world", string(body))
}

func TestTier_LookupMissOnExpiry(t *testing.T) {
	tier := newTestTier(t, Config{})
	key := cachekey.New("https://example.test/a", rangeOf(0, 9))

	require.NoError(t, tier.Store(key, []byte("short-lived"), -time.Second))

	_, ok := tier.Lookup(key)
	assert.False(t, ok)
}

func TestTier_StoreWithCompressionRoundTrips(t *testing.T) {
	tier := newTestTier(t, Config{EnableCompression: true})
	key := cachekey.New("https://example.test/a", rangeOf(0, 999))

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i % 7)
	}

	require.NoError(t, tier.Store(key, payload, time.Hour))
	body, ok := tier.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, payload, body)
}

func TestTier_ViewUnavailableWhenCompressed(t *testing.T) {
	tier := newTestTier(t, Config{EnableCompression: true})
	key := cachekey.New("https://example.test/a", rangeOf(0, 9))
	require.NoError(t, tier.Store(key, []byte("0123456789"), time.Hour))

	_, ok := tier.View(key)
	assert.False(t, ok)
}

func TestTier_ViewRefcountDefersBlockReuse(t *testing.T) {
	tier := newTestTier(t, Config{BlockSize: 16, TotalSize: 32})
	key := cachekey.New("https://example.test/a", rangeOf(0, 9))
	require.NoError(t, tier.Store(key, []byte("0123456789"), time.Hour))

	view, ok := tier.View(key)
	require.True(t, ok)
	assert.Equal(t, "0123456789", string(view.Bytes()))

	tier.Remove(key)
	// the view must still be readable after removal, since its refcount
	// is still held.
	assert.Equal(t, "0123456789", string(view.Bytes()))
	view.Release()
}

func TestTier_RemoveAndForEach(t *testing.T) {
	tier := newTestTier(t, Config{})
	k1 := cachekey.New("https://example.test/a", rangeOf(0, 9))
	k2 := cachekey.New("https://example.test/b", rangeOf(0, 9))
	require.NoError(t, tier.Store(k1, []byte("aaaaaaaaaa"), time.Hour))
	require.NoError(t, tier.Store(k2, []byte("bbbbbbbbbb"), time.Hour))

	seen := map[cachekey.Key]struct{}{}
	tier.ForEach(func(k cachekey.Key) { seen[k] = struct{}{} })
	assert.Len(t, seen, 2)

	assert.True(t, tier.Remove(k1))
	assert.False(t, tier.Remove(k1))

	seen = map[cachekey.Key]struct{}{}
	tier.ForEach(func(k cachekey.Key) { seen[k] = struct{}{} })
	assert.Len(t, seen, 1)
}

func TestTier_StoreReusesBlocksAfterRemove(t *testing.T) {
	tier := newTestTier(t, Config{BlockSize: 16, TotalSize: 32})
	k1 := cachekey.New("https://example.test/a", rangeOf(0, 9))
	k2 := cachekey.New("https://example.test/b", rangeOf(0, 9))

	require.NoError(t, tier.Store(k1, []byte("aaaaaaaaaa"), time.Hour))
	require.NoError(t, tier.Store(k2, []byte("bbbbbbbbbb"), time.Hour))

	// the 32-byte, 16-byte-block file has exactly 2 blocks; a third
	// store must fail until one is freed.
	k3 := cachekey.New("https://example.test/c", rangeOf(0, 9))
	require.Error(t, tier.Store(k3, []byte("cccccccccc"), time.Hour))

	tier.Remove(k1)
	require.NoError(t, tier.Store(k3, []byte("cccccccccc"), time.Hour))
}

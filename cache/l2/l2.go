// Package l2 implements the fixed-size block allocator over a
// preallocated file (C10), plus the zero-copy mmap and sendfile read
// paths (C12). Grounded on ricardobranco777/httpseek's MmapBlockCache
// (bitmap-tracked block validity) generalized to a file-backed mapping
// with a free-block allocator and a persisted key index.
package l2

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataDog/zstd"
	"github.com/cockroachdb/pebble/v2"

	"github.com/omalloc/tavern/cache/cachekey"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/pkg/encoding"
)

// Config configures the L2 tier (external interface §6, `l2.*` keys).
type Config struct {
	DevicePath        string
	TotalSize         int64
	BlockSize         int64
	EnableCompression bool
	TTL               time.Duration
}

type indexRecord struct {
	Blocks    []uint32 `json:"blocks"`
	Size      int64    `json:"size"`
	ExpiresAt int64    `json:"expires_at"`
}

type liveEntry struct {
	blocks    []uint32
	size      int64
	expiresAt int64
	refs      *refGroup
}

// Tier is the L2 raw-block disk tier.
type Tier struct {
	mu     sync.RWMutex
	file   *backingFile
	free   *freelist
	live   map[cachekey.Key]*liveEntry
	idx    *pebble.DB // rebuilt fresh every process start; never authoritative.
	codec  encoding.Codec
	cfg    Config
	logger *log.Helper
}

// Open creates (or truncates) the backing file and a fresh metadata
// index. Per the spec's resolution of the index-persistence open
// question, any pre-existing index at cfg.DevicePath+"/index" is wiped
// on open so a crash can never expose stale bytes through a rebuilt
// index pointing at blocks that have since been overwritten.
func Open(cfg Config, logger *log.Helper) (*Tier, error) {
	if err := os.MkdirAll(cfg.DevicePath, 0o755); err != nil {
		return nil, err
	}

	dataPath := filepath.Join(cfg.DevicePath, "blocks.bin")
	bf, err := openBackingFile(dataPath, cfg.TotalSize, cfg.BlockSize)
	if err != nil {
		return nil, err
	}

	idxPath := filepath.Join(cfg.DevicePath, "index")
	_ = os.RemoveAll(idxPath)
	idx, err := pebble.Open(idxPath, &pebble.Options{})
	if err != nil {
		bf.close()
		return nil, err
	}

	codec := encoding.DefaultCodec()
	if codec == nil {
		return nil, os.ErrInvalid
	}

	return &Tier{
		file:   bf,
		free:   newFreelist(uint32(bf.numBlocks)),
		live:   make(map[cachekey.Key]*liveEntry),
		idx:    idx,
		codec:  codec,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (t *Tier) blocksNeeded(size int64) int {
	n := int(size / t.cfg.BlockSize)
	if size%t.cfg.BlockSize != 0 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// Store writes body across one or more blocks and records it in the
// index with the given TTL. Any allocation or index error is returned;
// the façade passes it on to its caller, and the orchestrator logs it
// without propagating the store failure to the client.
func (t *Tier) Store(key cachekey.Key, body []byte, ttl time.Duration) error {
	payload := body
	if t.cfg.EnableCompression {
		compressed, err := zstd.Compress(nil, body)
		if err == nil && len(compressed) < len(body) {
			payload = compressed
		}
	}

	blocks, err := t.free.alloc(t.blocksNeeded(int64(len(payload))))
	if err != nil {
		return err
	}

	for i, idx := range blocks {
		off := i * int(t.cfg.BlockSize)
		end := off + int(t.cfg.BlockSize)
		if end > len(payload) {
			end = len(payload)
		}
		t.file.writeBlock(idx, payload[off:end])
	}

	rec := indexRecord{
		Blocks:    blocks,
		Size:      int64(len(payload)),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}

	t.mu.Lock()
	if old, ok := t.live[key]; ok {
		t.releaseEntry(old)
	}
	t.live[key] = &liveEntry{
		blocks:    blocks,
		size:      rec.Size,
		expiresAt: rec.ExpiresAt,
		refs:      newRefGroup(func() { t.free.free(blocks) }),
	}
	t.mu.Unlock()

	buf, err := t.codec.Marshal(rec)
	if err != nil {
		return err
	}
	return t.idx.Set([]byte(key.String()), buf, pebble.NoSync)
}

// Lookup returns the decompressed body for key, or (nil, false) on miss
// or expiry. Any I/O error is reported as a miss, never partial data.
func (t *Tier) Lookup(key cachekey.Key) ([]byte, bool) {
	t.mu.RLock()
	entry, ok := t.live[key]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().Unix() > entry.expiresAt {
		t.Remove(key)
		return nil, false
	}

	payload := t.readEntry(entry)
	if !t.cfg.EnableCompression {
		return payload, true
	}
	decompressed, err := zstd.Decompress(nil, payload)
	if err != nil {
		// not actually compressed (store chose not to, because it
		// didn't shrink) — fall back to the raw bytes.
		return payload, true
	}
	return decompressed, true
}

func (t *Tier) readEntry(entry *liveEntry) []byte {
	out := make([]byte, 0, entry.size)
	remaining := entry.size
	for _, idx := range entry.blocks {
		n := t.cfg.BlockSize
		if n > remaining {
			n = remaining
		}
		out = append(out, t.file.readBlock(idx)[:n]...)
		remaining -= n
	}
	return out
}

// View returns a zero-copy handle onto key's first block's backing
// memory when the body is exactly one block and uncompressed — the
// common case for mmap_threshold-sized slices. Callers needing the full
// multi-block body should use Lookup; View exists for C12's single-block
// fast path and the sendfile transfer helper.
func (t *Tier) View(key cachekey.Key) (*View, bool) {
	t.mu.RLock()
	entry, ok := t.live[key]
	t.mu.RUnlock()
	if !ok || t.cfg.EnableCompression || len(entry.blocks) != 1 {
		return nil, false
	}

	entry.refs.acquire()
	return &View{
		bytes:   t.file.readBlock(entry.blocks[0])[:entry.size],
		release: entry.refs.release,
	}, true
}

// FileFD exposes the backing file descriptor for the sendfile transfer
// path; callers must only read within an offset range covered by a View
// or Lookup they hold.
func (t *Tier) FileFD() int { return t.file.fd() }

// BlockOffset returns the backing-file byte offset of block idx.
func (t *Tier) BlockOffset(idx uint32) int64 { return int64(idx) * t.cfg.BlockSize }

// Remove evicts key from the index and defers block reuse until any
// outstanding Views are released.
func (t *Tier) Remove(key cachekey.Key) bool {
	t.mu.Lock()
	entry, ok := t.live[key]
	if ok {
		delete(t.live, key)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	t.releaseEntry(entry)
	_ = t.idx.Delete([]byte(key.String()), pebble.NoSync)
	return true
}

func (t *Tier) releaseEntry(entry *liveEntry) {
	entry.refs.release()
}

// ForEach visits every live key (used by URL-prefix purge).
func (t *Tier) ForEach(fn func(cachekey.Key)) {
	t.mu.RLock()
	keys := make([]cachekey.Key, 0, len(t.live))
	for k := range t.live {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	for _, k := range keys {
		fn(k)
	}
}

// UsedBlocks reports allocator occupancy, used by metrics.
func (t *Tier) UsedBlocks() int { return t.free.usedCount() }

// Close releases the mmap and closes the index.
func (t *Tier) Close(ctx context.Context) error {
	_ = t.idx.Close()
	return t.file.close()
}

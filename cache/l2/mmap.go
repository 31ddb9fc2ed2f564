package l2

import (
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// backingFile is the L2 tier's preallocated file, memory-mapped in
// whole. Grounded on ricardobranco777/httpseek's MmapBlockCache, but
// file-backed (unix.Mmap over an *os.File fd) rather than an anonymous
// mapping, so blocks outlive any single entry's lifetime and participate
// in the freelist's allocate/reuse cycle.
type backingFile struct {
	f         *os.File
	data      []byte
	blockSize int64
	numBlocks int64
}

func openBackingFile(path string, totalSize, blockSize int64) (*backingFile, error) {
	if blockSize <= 0 || totalSize <= 0 || totalSize%blockSize != 0 {
		return nil, os.ErrInvalid
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(totalSize); err != nil {
		f.Close()
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(totalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, os.NewSyscallError("mmap", err)
	}

	return &backingFile{
		f:         f,
		data:      data,
		blockSize: blockSize,
		numBlocks: totalSize / blockSize,
	}, nil
}

func (b *backingFile) writeBlock(idx uint32, payload []byte) {
	start := int64(idx) * b.blockSize
	end := start + b.blockSize
	n := copy(b.data[start:end], payload)
	for i := start + int64(n); i < end; i++ {
		b.data[i] = 0
	}
}

func (b *backingFile) readBlock(idx uint32) []byte {
	start := int64(idx) * b.blockSize
	end := start + b.blockSize
	return b.data[start:end:end]
}

func (b *backingFile) fd() int { return int(b.f.Fd()) }

func (b *backingFile) close() error {
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			return os.NewSyscallError("munmap", err)
		}
		b.data = nil
	}
	return b.f.Close()
}

// View is a zero-copy, read-only handle onto one entry's block bodies.
// The caller must call Release when done; the backing blocks are not
// returned to the freelist until the last outstanding View on them is
// released, even if a purge or eviction has already logically removed
// the entry (§4.12: "a subsequent mutation of the block list must not
// invalidate views already handed out").
type View struct {
	bytes   []byte
	release func()
	once    sync.Once
}

// Bytes returns the read-only view of the entry's body.
func (v *View) Bytes() []byte { return v.bytes }

// Release drops this view's hold on the underlying blocks.
func (v *View) Release() {
	v.once.Do(func() {
		if v.release != nil {
			v.release()
		}
	})
}

// refGroup tracks outstanding Views over a set of blocks so the tier can
// defer reuse until every view is released.
type refGroup struct {
	n        atomic.Int64
	onZero   func()
	zeroOnce sync.Once
}

// newRefGroup starts with a single implicit reference representing the
// index's own hold on the blocks; the caller drops it (via release) when
// the entry is removed from the index, e.g. on purge or eviction.
func newRefGroup(onZero func()) *refGroup {
	g := &refGroup{onZero: onZero}
	g.n.Store(1)
	return g
}

func (g *refGroup) acquire() { g.n.Add(1) }

func (g *refGroup) release() {
	if g.n.Add(-1) == 0 {
		g.zeroOnce.Do(func() {
			if g.onZero != nil {
				g.onZero()
			}
		})
	}
}

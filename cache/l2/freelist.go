package l2

import (
	"errors"
	"sync"

	"github.com/kelindar/bitmap"
)

// ErrOutOfSpace is returned when the backing file has no remaining free
// blocks to satisfy an allocation.
var ErrOutOfSpace = errors.New("l2: no free blocks remaining")

// freelist tracks which blocks of the backing file are currently
// assigned to a live entry. Allocation and free both run under a single
// critical section, matching the spec's "L2 free-block allocator uses a
// single critical section for allocation/free; block I/O is lock-free
// once block indices are acquired".
type freelist struct {
	mu        sync.Mutex
	used      bitmap.Bitmap
	numBlocks uint32
	cursor    uint32
}

func newFreelist(numBlocks uint32) *freelist {
	return &freelist{numBlocks: numBlocks}
}

// alloc reserves n blocks, contiguous when convenient but falling back to
// scattered indices when the file is fragmented — the spec explicitly
// permits either.
func (f *freelist) alloc(n int) ([]uint32, error) {
	if n <= 0 {
		return nil, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	blocks := make([]uint32, 0, n)
	start := f.cursor
	scanned := uint32(0)
	for scanned < f.numBlocks && len(blocks) < n {
		idx := (start + scanned) % f.numBlocks
		scanned++
		if !f.used.Contains(idx) {
			f.used.Set(idx)
			blocks = append(blocks, idx)
		}
	}
	f.cursor = (start + scanned) % f.numBlocks

	if len(blocks) < n {
		// roll back what we grabbed; the caller gets nothing, not a
		// partial, unusable allocation.
		for _, idx := range blocks {
			f.used.Clear(idx)
		}
		return nil, ErrOutOfSpace
	}
	return blocks, nil
}

// free returns blocks to the pool. Blocks must not be read as part of
// another live entry after this call returns.
func (f *freelist) free(blocks []uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, idx := range blocks {
		f.used.Clear(idx)
	}
}

func (f *freelist) usedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used.Count()
}

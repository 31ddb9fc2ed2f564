// Package plan implements the slice planner (C4): given an object's
// content length and an optional client byte range, produce the ordered,
// slice-size-aligned list of fetch units the orchestrator will resolve
// against the cache and, where missing, fetch from origin.
//
// Grounded on the teacher's pkg/iobuf.BreakInBitmap/BlockGroup alignment
// arithmetic (server/middleware/caching/caching.go's lazilyRespond),
// generalized from a fixed internal block size to the configured slice
// size S, and from a bitmap-of-present-blocks query to an ordered
// SliceSpec list.
package plan

import (
	"errors"

	"github.com/kelindar/bitmap"

	"github.com/omalloc/tavern/pkg/rangehdr"
)

const (
	MinSliceSize = 64 * 1024
	MaxSliceSize = 10 * 1024 * 1024
)

// ErrUnsatisfiableRange is returned when the client's requested start lies
// at or beyond the object's content length (HTTP 416).
var ErrUnsatisfiableRange = errors.New("plan: range start is at or beyond content length")

// ErrInvalidSliceSize is returned when the configured slice size or
// content length is out of bounds.
var ErrInvalidSliceSize = errors.New("plan: slice size or content length out of bounds")

// SliceSpec is one fetch unit in an ordered plan.
type SliceSpec struct {
	Index  int
	Range  rangehdr.ByteRange
	// Cached is seeded from the cached bitmap passed to Build (the
	// orchestrator passes nil, so it is false there). It is advisory: the orchestrator rechecks immediately before
	// dispatching a subrequest for this slice.
	Cached bool
}

// Plan is the ordered, slice-size-aligned cover of one request's fetch
// span. Slices are emitted over AlignedSpan (a multiple-of-S-aligned
// superset of ClientSpan), not ClientSpan itself — aligning to fixed
// block boundaries regardless of the client's exact start/end lets
// different client ranges over the same object share cache entries. The
// assembler (C7) trims delivered bytes down to ClientSpan.
type Plan struct {
	Slices        []SliceSpec
	ClientSpan    rangehdr.ByteRange
	AlignedSpan   rangehdr.ByteRange
	ContentLength int64
	IsClientRange bool
}

// Build produces a Plan for an object of the given contentLength, sliced
// at sliceSize, optionally narrowed to clientRange. cached, if non-nil, is
// a bitmap of slice indices (by aligned offset / sliceSize) already known
// present in the cache façade; it seeds each SliceSpec.Cached.
func Build(contentLength, sliceSize int64, clientRange *rangehdr.ByteRange, cached bitmap.Bitmap) (Plan, error) {
	if sliceSize < MinSliceSize || sliceSize > MaxSliceSize || contentLength <= 0 {
		return Plan{}, ErrInvalidSliceSize
	}

	isClientRange := clientRange != nil
	clientSpan := rangehdr.ByteRange{Start: 0, End: contentLength - 1}
	if isClientRange {
		end := clientRange.End
		if end > contentLength-1 {
			end = contentLength - 1
		}
		clientSpan = rangehdr.ByteRange{Start: clientRange.Start, End: end}
	}

	if clientSpan.Start >= contentLength {
		return Plan{}, ErrUnsatisfiableRange
	}

	alignedStart := (clientSpan.Start / sliceSize) * sliceSize
	alignedEnd := (clientSpan.End/sliceSize)*sliceSize + sliceSize - 1
	if alignedEnd > contentLength-1 {
		alignedEnd = contentLength - 1
	}

	slices := make([]SliceSpec, 0, (alignedEnd-alignedStart)/sliceSize+1)
	for idx, start := 0, alignedStart; start <= alignedEnd; idx, start = idx+1, start+sliceSize {
		end := start + sliceSize - 1
		if end > alignedEnd {
			end = alignedEnd
		}
		sliceIdx := uint32(start / sliceSize)
		slices = append(slices, SliceSpec{
			Index:  idx,
			Range:  rangehdr.ByteRange{Start: start, End: end},
			Cached: cached != nil && cached.Contains(sliceIdx),
		})
	}

	return Plan{
		Slices:        slices,
		ClientSpan:    clientSpan,
		AlignedSpan:   rangehdr.ByteRange{Start: alignedStart, End: alignedEnd},
		ContentLength: contentLength,
		IsClientRange: isClientRange,
	}, nil
}

// SliceIndex returns the object-absolute slice index (offset / sliceSize)
// a block-aligned byte offset belongs to, for use keying into the cache
// façade.
func SliceIndex(offset, sliceSize int64) uint32 {
	return uint32(offset / sliceSize)
}

// Package assemble implements the response assembler (C7): it drives a
// plan's ordered slices through a caller-supplied fetch function, holds
// completed-but-not-yet-sent slices in a bounded reorder buffer, and
// streams them to the client in index order, trimming the first and
// last slice down from the plan's slice-aligned AlignedSpan to the
// client's literal ClientSpan.
//
// Grounded on the teacher's partsReader (pkg/iobuf/part_reader.go) for
// the sequential-multi-reader composition shape, and on
// server/middleware/caching/caching.go's lazilyRespond for the
// 200-vs-206 header-selection rules. The bounded reorder buffer itself
// has no direct teacher analogue — the teacher dispatches a single
// upstream request per client request — so it is built directly over
// channels per the spec's high-watermark backpressure requirement.
package assemble

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/omalloc/tavern/pkg/rangehdr"
	"github.com/omalloc/tavern/slice/plan"
	"github.com/omalloc/tavern/slice/probe"
)

// DefaultHighWatermark bounds how many slices may be fetched and held
// in the reorder buffer ahead of the one currently being sent, before
// the dispatcher pauses starting new fetches.
const DefaultHighWatermark = 4

// FetchFunc resolves one planned slice to its bytes, from cache or
// origin; the assembler does not care which.
type FetchFunc func(ctx context.Context, spec plan.SliceSpec) ([]byte, error)

// Result is the assembled HTTP response: status, headers, and a body
// that streams slices in order as they become available.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// FirstSliceError reports that the very first slice could not be
// resolved, before any response headers or bytes were committed to the
// client. Unlike a failure on any later slice — which can only ever
// truncate an already-committed stream — this is the one terminal
// fetch failure a caller can still map to a clean error response (502)
// instead of a truncation, per the finalize-step failure mapping.
type FirstSliceError struct {
	Err error
}

func (e *FirstSliceError) Error() string {
	return fmt.Sprintf("assemble: slice 0: %v", e.Err)
}

func (e *FirstSliceError) Unwrap() error { return e.Err }

// Assemble resolves the plan's first slice synchronously — so a
// terminal failure there can still be reported as an error rather than
// committing a response — then starts fetching the remaining slices
// (bounded by highWatermark in-flight-or-unsent slices at a time) and
// returns a Result whose Body yields ClientSpan-trimmed bytes in order.
// The caller must Close the Body; closing before EOF cancels all
// outstanding and future fetches.
func Assemble(ctx context.Context, p plan.Plan, meta probe.Metadata, highWatermark int, fetch FetchFunc) (*Result, error) {
	if highWatermark <= 0 {
		highWatermark = DefaultHighWatermark
	}
	if len(p.Slices) == 0 {
		return nil, fmt.Errorf("assemble: plan has no slices")
	}

	bctx, cancel := context.WithCancel(ctx)

	first, err := fetch(bctx, p.Slices[0])
	if err != nil {
		cancel()
		return nil, &FirstSliceError{Err: err}
	}

	b := &body{
		ctx:        bctx,
		cancel:     cancel,
		slices:     p.Slices,
		clientSpan: p.ClientSpan,
		done:       make([]chan sliceResult, len(p.Slices)),
		tokens:     make(chan struct{}, highWatermark),
		fetch:      fetch,
	}
	for i := range b.done {
		b.done[i] = make(chan sliceResult, 1)
	}
	b.tokens <- struct{}{} // slice 0's reorder token, held until Read drains it
	b.done[0] <- sliceResult{data: first}

	b.wg.Add(1)
	go b.dispatchFrom(1)

	header := make(http.Header)
	header.Set("Accept-Ranges", "bytes")
	if meta.ContentType != "" {
		header.Set("Content-Type", meta.ContentType)
	}
	if meta.ETag != "" {
		header.Set("ETag", meta.ETag)
	}
	if meta.LastModified != "" {
		header.Set("Last-Modified", meta.LastModified)
	}

	status := http.StatusOK
	if p.IsClientRange {
		status = http.StatusPartialContent
		header.Set("Content-Range", p.ClientSpan.ContentRange(p.ContentLength))
	}
	header.Set("Content-Length", fmt.Sprintf("%d", p.ClientSpan.Length()))

	return &Result{StatusCode: status, Header: header, Body: b}, nil
}

type sliceResult struct {
	data []byte
	err  error
}

// body is the ordered, trimmed, bounded-reorder-buffer stream of an
// assembled response. It implements io.ReadCloser.
type body struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	slices     []plan.SliceSpec
	clientSpan rangehdr.ByteRange
	fetch      FetchFunc

	done   []chan sliceResult
	tokens chan struct{}

	next    int    // index of the slice currently being read/sent
	current []byte // unread remainder of the current slice's trimmed bytes
	closed  bool
	err     error
}

// dispatchFrom walks the plan from start in order, acquiring a reorder
// token per slice before starting its fetch. Each token is held until
// Read has fully drained that slice, so at most cap(tokens) slices are
// ever in flight or buffered-unsent at once — the high-watermark
// backpressure. Slice 0 is resolved synchronously by Assemble itself
// and already holds its token, so dispatchFrom always starts at 1.
func (b *body) dispatchFrom(start int) {
	defer b.wg.Done()
	for i := start; i < len(b.slices); i++ {
		spec := b.slices[i]
		select {
		case b.tokens <- struct{}{}:
		case <-b.ctx.Done():
			b.done[i] <- sliceResult{err: b.ctx.Err()}
			for j := i + 1; j < len(b.slices); j++ {
				b.done[j] <- sliceResult{err: b.ctx.Err()}
			}
			return
		}

		b.wg.Add(1)
		go func(i int, spec plan.SliceSpec) {
			defer b.wg.Done()
			data, err := b.fetch(b.ctx, spec)
			b.done[i] <- sliceResult{data: data, err: err}
		}(i, spec)
	}
}

// Read implements io.Reader, delivering ClientSpan-trimmed bytes from
// the plan's slices in order.
func (b *body) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	for len(b.current) == 0 {
		if b.next >= len(b.slices) {
			b.err = io.EOF
			return 0, io.EOF
		}

		select {
		case res := <-b.done[b.next]:
			<-b.tokens // release the reorder token now that this slice is consumed
			if res.err != nil {
				b.err = fmt.Errorf("assemble: slice %d: %w", b.next, res.err)
				return 0, b.err
			}
			b.current = trim(b.slices[b.next], res.data, b.clientSpan)
			b.next++
		case <-b.ctx.Done():
			b.err = b.ctx.Err()
			return 0, b.err
		}
	}

	n := copy(p, b.current)
	b.current = b.current[n:]
	return n, nil
}

// Close cancels any outstanding or not-yet-started fetches and waits
// for dispatched goroutines to unwind.
func (b *body) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()
	b.wg.Wait()
	return nil
}

// trim clips a fetched slice's bytes from the plan's slice-aligned
// AlignedSpan boundaries down to the client's literal ClientSpan: the
// first slice may need leading bytes dropped, the last slice trailing
// bytes dropped.
func trim(spec plan.SliceSpec, data []byte, clientSpan rangehdr.ByteRange) []byte {
	lead := clientSpan.Start - spec.Range.Start
	if lead < 0 {
		lead = 0
	}
	trail := spec.Range.End - clientSpan.End
	if trail < 0 {
		trail = 0
	}
	end := int64(len(data)) - trail
	if end < lead {
		end = lead
	}
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[lead:end]
}

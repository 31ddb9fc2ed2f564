// Package fetch implements the subrequest executor (C5): fetches a single
// planned slice from the origin, validating status, Content-Range, and
// body length before the bytes are handed back to the assembler.
//
// Grounded on the teacher's getUpstreamReader/doProxy
// (server/middleware/caching/caching.go) for the subrequest-construction
// and upstream-dispatch shape, and on
// ricardobranco777-httpseek/rangecache/rangecache.go for collapsing
// identical in-flight range fetches. Collapsing itself rides on
// proxy.ReverseProxy's own golang.org/x/sync/singleflight group (keyed on
// method+URL+Range) rather than a second singleflight.Group here.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/internal/constants"
	"github.com/omalloc/tavern/pkg/backoff"
	"github.com/omalloc/tavern/pkg/rangehdr"
	"github.com/omalloc/tavern/proxy"
	"github.com/omalloc/tavern/slice/plan"
)

// ErrFetchFailed wraps a terminal (non-retryable) subrequest failure: a
// non-206 status, a mismatched Content-Range, or a body-length mismatch.
var ErrFetchFailed = errors.New("fetch: subrequest failed")

// errRetryable wraps a network error, timeout, or 5xx — the only
// conditions the retry loop reattempts.
var errRetryable = errors.New("fetch: retryable subrequest failure")

// Config controls retry policy and the per-attempt collapsed-request wait.
type Config struct {
	MaxRetries   int
	Backoff      backoff.Schedule
	CollapseWait time.Duration
}

// Fetch dispatches a single planned slice. req is the original client
// request whose Range header is replaced with spec.Range before
// dispatch, and marked with the internal slice-hint header so it is
// never re-sliced if it loops back through the same RoundTripper chain.
func Fetch(ctx context.Context, p proxy.Proxy, req *http.Request, spec plan.SliceSpec, contentLength int64, cfg Config, logger *log.Helper) ([]byte, error) {
	sched := cfg.Backoff
	if sched == nil {
		sched = backoff.Default
	}
	attempts := cfg.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(sched.Delay(attempt - 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		subReq := buildSubRequest(ctx, req, spec)
		resp, err := p.Do(subReq, true, cfg.CollapseWait)
		if err != nil {
			lastErr = err
			logger.Warnw("msg", "fetch attempt failed", "index", spec.Index, "attempt", attempt, "err", err)
			continue
		}

		body, verr, retryable := validate(resp, spec.Range, contentLength)
		if verr == nil {
			return body, nil
		}
		lastErr = verr
		if !retryable {
			return nil, verr
		}
		logger.Warnw("msg", "fetch attempt retryable", "index", spec.Index, "attempt", attempt, "err", verr)
	}

	return nil, fmt.Errorf("%w: slice %d: %v", ErrFetchFailed, spec.Index, lastErr)
}

func buildSubRequest(ctx context.Context, orig *http.Request, spec plan.SliceSpec) *http.Request {
	sub := orig.Clone(ctx)
	sub.Header.Set("Range", spec.Range.String())
	sub.Header.Set(constants.InternalSliceHint, strconv.Itoa(spec.Index))
	sub.Header.Del(constants.ProtocolCacheStatusKey)
	return sub
}

func validate(resp *http.Response, want rangehdr.ByteRange, contentLength int64) (body []byte, err error, retryable bool) {
	defer func() {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: upstream status %d", errRetryable, resp.StatusCode), true
	}
	if resp.StatusCode != http.StatusPartialContent {
		return nil, fmt.Errorf("%w: want 206, got %d", ErrFetchFailed, resp.StatusCode), false
	}

	cr, err := rangehdr.ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil || !cr.Matches(want, contentLength) {
		return nil, fmt.Errorf("%w: content-range mismatch for %s", ErrFetchFailed, want), false
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errRetryable, err), true
	}
	if int64(len(data)) != want.Length() {
		return nil, fmt.Errorf("%w: body length %d want %d", ErrFetchFailed, len(data), want.Length()), false
	}

	return data, nil, false
}

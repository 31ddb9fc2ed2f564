// Package probe implements the metadata prober (C3): a HEAD request to the
// origin that determines whether a request is eligible for slicing, and if
// so, the object's content length and range support.
//
// Grounded on the teacher's doProxy (server/middleware/caching/caching.go):
// same upstream dispatch via proxy.Proxy, same hop-by-hop header handling,
// generalized from a GET-and-cache-body call to a HEAD-only probe.
package probe

import (
	"context"
	"net/http"
	"net/textproto"
	"time"

	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/pkg/backoff"
	"github.com/omalloc/tavern/proxy"
)

// Config controls which headers are forwarded on the probe and the retry
// policy for 5xx/network failures.
type Config struct {
	// ForwardHeaders is the allowlist of request headers copied onto the
	// HEAD subrequest. Range, Content-Length, and Authorization are never
	// forwarded regardless of this list, unless ForwardAuthorization is set.
	ForwardHeaders []string
	// ForwardAuthorization allows Authorization through the allowlist path
	// for origins that require it.
	ForwardAuthorization bool
	// MaxRetries bounds additional attempts after the first failure for
	// network errors and 5xx responses.
	MaxRetries int
	// Backoff is the delay schedule between retries.
	Backoff backoff.Schedule
}

// DefaultForwardHeaders is the conservative header set forwarded by default.
var DefaultForwardHeaders = []string{"Host", "User-Agent", "X-Request-Id"}

// Metadata is the subset of the origin's response the planner and
// assembler need.
type Metadata struct {
	ContentLength int64
	SupportsRange bool
	ContentType   string
	ETag          string
	LastModified  string
}

// Result is the prober's verdict for one request.
type Result struct {
	// Eligible is false when the object fails the range-support or
	// content-length checks; the caller falls back to Passthrough.
	Eligible bool
	Metadata Metadata

	// ClientStatus is non-zero when the origin returned a 4xx that must be
	// surfaced to the client verbatim, rather than treated as ineligible.
	ClientStatus int
	ClientHeader http.Header
}

var neverForward = map[string]struct{}{
	"Range":          {},
	"Content-Length": {},
	"Authorization":  {},
}

// Probe issues a HEAD to the origin for req's URL, forwarding only the
// configured header allowlist, and validates the response per spec: status
// 200, "Accept-Ranges: bytes", and a non-zero integer Content-Length.
func Probe(ctx context.Context, p proxy.Proxy, req *http.Request, cfg Config, logger *log.Helper) (Result, error) {
	headers := cfg.ForwardHeaders
	if len(headers) == 0 {
		headers = DefaultForwardHeaders
	}

	var lastErr error
	attempts := cfg.MaxRetries + 1
	sched := cfg.Backoff
	if sched == nil {
		sched = backoff.Default
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(sched.Delay(attempt - 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return Result{}, ctx.Err()
			}
		}

		headReq, err := buildHeadRequest(ctx, req, headers, cfg.ForwardAuthorization)
		if err != nil {
			return Result{}, err
		}

		resp, err := p.Do(headReq, false, 0)
		if err != nil {
			lastErr = err
			logger.Warnw("msg", "probe attempt failed", "attempt", attempt, "err", err)
			continue
		}
		if resp.Body != nil {
			_ = resp.Body.Close()
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = &statusError{resp.StatusCode}
			logger.Warnw("msg", "probe upstream 5xx", "attempt", attempt, "status", resp.StatusCode)
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			return Result{ClientStatus: resp.StatusCode, ClientHeader: resp.Header}, nil
		}

		return evaluate(resp), nil
	}

	logger.Errorw("msg", "probe exhausted retries", "err", lastErr)
	return Result{Eligible: false}, nil
}

func evaluate(resp *http.Response) Result {
	if resp.StatusCode != http.StatusOK {
		return Result{Eligible: false}
	}
	if resp.Header.Get("Accept-Ranges") != "bytes" {
		return Result{Eligible: false}
	}
	length := resp.ContentLength
	if length <= 0 {
		return Result{Eligible: false}
	}

	return Result{
		Eligible: true,
		Metadata: Metadata{
			ContentLength: length,
			SupportsRange: true,
			ContentType:   resp.Header.Get("Content-Type"),
			ETag:          resp.Header.Get("ETag"),
			LastModified:  resp.Header.Get("Last-Modified"),
		},
	}
}

func buildHeadRequest(ctx context.Context, req *http.Request, allow []string, forwardAuth bool) (*http.Request, error) {
	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, req.URL.String(), nil)
	if err != nil {
		return nil, err
	}

	for _, key := range allow {
		canon := textproto.CanonicalMIMEHeaderKey(key)
		if _, blocked := neverForward[canon]; blocked && !(canon == "Authorization" && forwardAuth) {
			continue
		}
		if v := req.Header.Get(canon); v != "" {
			headReq.Header.Set(canon, v)
		}
	}
	headReq.Host = req.Host

	return headReq, nil
}

type statusError struct{ code int }

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}

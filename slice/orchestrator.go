// Package slice is the orchestrator (C15): it ties the analyzer,
// prober, planner, per-slice fetcher, concurrency gate, cache façade,
// and response assembler into the single state machine that answers
// one client request.
//
// Grounded on the teacher's caching.Middleware/Caching.lazilyRespond
// (server/middleware/caching/caching.go) for the overall
// analyze-then-probe-then-serve shape, generalized from the teacher's
// single on-disk cache file per object to independently cacheable,
// independently fetchable slices.
package slice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/omalloc/tavern/cache"
	"github.com/omalloc/tavern/cache/prefetch"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/metrics"
	"github.com/omalloc/tavern/pkg/backoff"
	"github.com/omalloc/tavern/pkg/rangehdr"
	xhttp "github.com/omalloc/tavern/pkg/x/http"
	"github.com/omalloc/tavern/proxy"
	"github.com/omalloc/tavern/slice/analyze"
	"github.com/omalloc/tavern/slice/assemble"
	"github.com/omalloc/tavern/slice/fetch"
	"github.com/omalloc/tavern/slice/gate"
	"github.com/omalloc/tavern/slice/plan"
	"github.com/omalloc/tavern/slice/probe"
)

// Config carries every tunable the orchestrator threads down into the
// pipeline stages; it is built once from conf.Slicing at startup.
type Config struct {
	SliceSize            int64
	MaxConcurrent        int
	MaxRetries           int
	Backoff              backoff.Schedule
	Patterns             []string
	EnableCache          bool
	CollapseWait         time.Duration
	HighWatermark        int
	ForwardHeaders       []string
	ForwardAuthorization bool

	PrefetchEnabled        bool
	PrefetchWindowSize     int
	PrefetchMaxWorkers     int
	PrefetchMaxAheadSlices int
}

// Orchestrator answers one client request end to end: decide whether
// to slice, probe the object's metadata, plan the slice cover, resolve
// each slice from cache or origin under the concurrency gate, and
// stream the assembled, correctly-trimmed result back.
type Orchestrator struct {
	cfg      Config
	gate     *gate.Gate
	cache    cache.Cache
	prefetch *prefetch.Manager
	log      *log.Helper
}

// New builds an Orchestrator. cache may be nil, which disables slice
// caching entirely (every slice is always fetched from origin).
func New(cfg Config, c cache.Cache, logger *log.Helper) *Orchestrator {
	if cfg.SliceSize <= 0 {
		cfg.SliceSize = plan.MinSliceSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 32
	}

	o := &Orchestrator{
		cfg:   cfg,
		gate:  gate.New(cfg.MaxConcurrent),
		cache: c,
		log:   logger,
	}
	if cfg.PrefetchEnabled && c != nil {
		o.prefetch = prefetch.New(prefetch.Config{
			WindowSize:     cfg.PrefetchWindowSize,
			MaxWorkers:     cfg.PrefetchMaxWorkers,
			MaxAheadSlices: cfg.PrefetchMaxAheadSlices,
			SliceSize:      cfg.SliceSize,
		}, c, logger)
	}
	return o
}

// Serve answers req via p, the upstream proxy, returning Passthrough
// (ok=false) when the analyzer opts the request out of slicing, in
// which case the caller must forward req unmodified itself.
func (o *Orchestrator) Serve(ctx context.Context, p proxy.Proxy, req *http.Request) (resp *http.Response, ok bool, err error) {
	decision, rawRange, err := analyze.Decide(req, o.cfg.Patterns)
	if err != nil {
		return nil, false, err
	}
	if decision == analyze.Passthrough {
		return nil, false, nil
	}

	probeCfg := probe.Config{
		ForwardHeaders:       o.cfg.ForwardHeaders,
		ForwardAuthorization: o.cfg.ForwardAuthorization,
		MaxRetries:           o.cfg.MaxRetries,
		Backoff:              o.cfg.Backoff,
	}
	presult, err := probe.Probe(ctx, p, req, probeCfg, o.log)
	if err != nil {
		return nil, true, err
	}
	if !presult.Eligible {
		if presult.ClientStatus != 0 {
			return &http.Response{
				StatusCode: presult.ClientStatus,
				Header:     presult.ClientHeader,
				Proto:      req.Proto,
				Request:    req,
			}, true, nil
		}
		return nil, false, nil
	}

	var clientRange *rangehdr.ByteRange
	if rawRange != "" {
		parsed, perr := rangehdr.Parse(rawRange, presult.Metadata.ContentLength)
		if perr != nil {
			headers := make(http.Header)
			headers.Set("Content-Range", fmt.Sprintf("bytes */%d", presult.Metadata.ContentLength))
			return &http.Response{
				StatusCode: http.StatusRequestedRangeNotSatisfiable,
				Header:     headers,
				Proto:      req.Proto,
				Request:    req,
			}, true, nil
		}
		clientRange = &parsed
	}

	normalized := normalizeURL(req)

	// cached is left nil: the planner's Cached hint is advisory only,
	// and fetchFunc below rechecks the cache façade per slice anyway,
	// so there is no need to probe slice residency before the slice
	// indices themselves are known.
	p9, err := plan.Build(presult.Metadata.ContentLength, o.cfg.SliceSize, clientRange, nil)
	if err != nil {
		if err == plan.ErrUnsatisfiableRange {
			headers := make(http.Header)
			headers.Set("Content-Range", fmt.Sprintf("bytes */%d", presult.Metadata.ContentLength))
			return &http.Response{
				StatusCode: http.StatusRequestedRangeNotSatisfiable,
				Header:     headers,
				Proto:      req.Proto,
				Request:    req,
			}, true, nil
		}
		return nil, true, err
	}

	fetchCfg := fetch.Config{MaxRetries: o.cfg.MaxRetries, Backoff: o.cfg.Backoff, CollapseWait: o.cfg.CollapseWait}
	fetchOne := o.fetchFunc(p, req, normalized, p9.ContentLength, fetchCfg)

	result, err := assemble.Assemble(ctx, p9, presult.Metadata, o.cfg.HighWatermark, fetchOne)
	if err != nil {
		// A terminal failure resolving the first slice means no bytes
		// have reached the client yet, so it maps to a clean 502 rather
		// than a truncated stream (the mapping every later-slice failure
		// gets instead, by returning an already-started body that errors
		// mid-read).
		var firstErr *assemble.FirstSliceError
		if errors.As(err, &firstErr) {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Header:     make(http.Header),
				Proto:      req.Proto,
				Request:    req,
			}, true, nil
		}
		return nil, true, err
	}

	return &http.Response{
		StatusCode:    result.StatusCode,
		Header:        result.Header,
		Body:          result.Body,
		Proto:         req.Proto,
		Request:       req,
		ContentLength: p9.ClientSpan.Length(),
	}, true, nil
}

// fetchFunc resolves one slice: a cache hit short-circuits the gated
// origin fetch, and a successful origin fetch is written back into the
// cache façade before being returned.
func (o *Orchestrator) fetchFunc(p proxy.Proxy, req *http.Request, normalizedURL string, contentLength int64, cfg fetch.Config) assemble.FetchFunc {
	return func(ctx context.Context, spec plan.SliceSpec) ([]byte, error) {
		key := cache.NewKey(normalizedURL, spec.Range)
		metric := metrics.FromContext(ctx)

		if o.prefetch != nil {
			o.prefetch.Observe(normalizedURL, int64(spec.Index))
		}

		if o.cache != nil && o.cfg.EnableCache {
			if body, hit := o.cache.Lookup(key); hit {
				metric.IncSliceFromCache()
				return body, nil
			}
		}

		if err := o.gate.Acquire(ctx); err != nil {
			return nil, err
		}
		defer o.gate.Release()

		body, err := fetch.Fetch(ctx, p, req, spec, contentLength, cfg, o.log)
		if err != nil {
			return nil, err
		}
		metric.IncSliceFromOrigin()

		if o.cache != nil && o.cfg.EnableCache {
			if serr := o.cache.Store(key, body); serr != nil {
				o.log.Warnw("msg", "failed to store fetched slice in cache", "key", key.String(), "err", serr)
			}
		}

		return body, nil
	}
}

func normalizeURL(req *http.Request) string {
	return fmt.Sprintf("%s://%s%s", xhttp.Scheme(req), req.Host, req.URL.Path)
}

// Close drains any in-flight background prefetch work.
func (o *Orchestrator) Close() error {
	if o.prefetch == nil {
		return nil
	}
	return o.prefetch.Close()
}

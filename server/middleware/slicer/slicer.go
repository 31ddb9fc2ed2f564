// Package slicer is the RoundTripper middleware that wires the sliced
// fetch-and-cache pipeline (slice.Orchestrator) into the server's
// middleware chain. It replaces the teacher's caching middleware:
// where caching dispatched one upstream request per client request
// against a single on-disk cache file per object, slicer dispatches
// independently-cacheable, independently-fetchable byte-range slices.
//
// Grounded on the teacher's caching.Middleware (now superseded)
// (server/middleware/caching/caching.go) for the registration and
// RoundTripper-wrapping shape.
package slicer

import (
	"net/http"
	"time"

	configv1 "github.com/omalloc/tavern/api/defined/v1/middleware"
	"github.com/omalloc/tavern/cache"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/internal/constants"
	"github.com/omalloc/tavern/pkg/backoff"
	"github.com/omalloc/tavern/proxy"
	"github.com/omalloc/tavern/server/middleware"
	"github.com/omalloc/tavern/slice"
)

func init() {
	middleware.Register("slicer", Middleware)
}

type sliceOption struct {
	SliceSize                uint64   `json:"slice_size" yaml:"slice_size"`
	MaxConcurrentSubrequests int      `json:"max_concurrent_subrequests" yaml:"max_concurrent_subrequests"`
	MaxRetries               int      `json:"max_retries" yaml:"max_retries"`
	RetryBackoffMS           int      `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	SlicePatterns            []string `json:"slice_patterns" yaml:"slice_patterns"`
	EnableCache              bool     `json:"enable_cache" yaml:"enable_cache"`
	CollapsedRequestTimeout  string   `json:"collapsed_request_timeout" yaml:"collapsed_request_timeout"`
	HighWatermark            int      `json:"high_watermark" yaml:"high_watermark"`
	ForwardHeaders           []string `json:"forward_headers" yaml:"forward_headers"`
	ForwardAuthorization     bool     `json:"forward_authorization" yaml:"forward_authorization"`
	PrefetchEnabled          bool     `json:"prefetch_enabled" yaml:"prefetch_enabled"`
	PrefetchWindowSize       int      `json:"prefetch_window_size" yaml:"prefetch_window_size"`
	PrefetchMaxWorkers       int      `json:"prefetch_max_workers" yaml:"prefetch_max_workers"`
	PrefetchMaxAheadSlices   int      `json:"prefetch_max_ahead_slices" yaml:"prefetch_max_ahead_slices"`
}

// Middleware builds the slicer RoundTripper from its configured options.
// The cache façade is process-wide (cache.Current, installed once at
// startup from conf.Bootstrap.Slicing) rather than per-middleware, since
// the purge control plane (C13) needs the same instance.
func Middleware(c *configv1.Middleware) (middleware.Middleware, func(), error) {
	opts := &sliceOption{
		MaxConcurrentSubrequests: 32,
		HighWatermark:            4,
	}
	if err := c.Unmarshal(opts); err != nil {
		return nil, middleware.EmptyCleanup, err
	}

	cfg := slice.Config{
		SliceSize:            int64(opts.SliceSize),
		MaxConcurrent:        opts.MaxConcurrentSubrequests,
		MaxRetries:           opts.MaxRetries,
		Patterns:             opts.SlicePatterns,
		EnableCache:          opts.EnableCache,
		HighWatermark:        opts.HighWatermark,
		ForwardHeaders:       opts.ForwardHeaders,
		ForwardAuthorization: opts.ForwardAuthorization,

		PrefetchEnabled:        opts.PrefetchEnabled,
		PrefetchWindowSize:     opts.PrefetchWindowSize,
		PrefetchMaxWorkers:     opts.PrefetchMaxWorkers,
		PrefetchMaxAheadSlices: opts.PrefetchMaxAheadSlices,
	}
	if opts.RetryBackoffMS > 0 {
		cfg.Backoff = backoff.Schedule{time.Duration(opts.RetryBackoffMS) * time.Millisecond}
	}
	if opts.CollapsedRequestTimeout != "" {
		if d, err := time.ParseDuration(opts.CollapsedRequestTimeout); err == nil {
			cfg.CollapseWait = d
		}
	}

	orchestrator := slice.New(cfg, cache.Current(), log.NewHelper(log.GetLogger()))

	return func(origin http.RoundTripper) http.RoundTripper {
		proxyClient := proxy.GetProxy()

		return middleware.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, ok, err := orchestrator.Serve(req.Context(), proxyClient, req)
			if err != nil {
				return nil, err
			}
			if !ok {
				return origin.RoundTrip(req)
			}
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			resp.Header.Set(constants.ProtocolCacheStatusKey, cacheStatus(resp))
			return resp, nil
		})
	}, func() { _ = orchestrator.Close() }, nil
}

// cacheStatus reports a coarse label for the access-log and X-Cache
// header: BYPASS for a status of 400 or above, SLICED otherwise. Precise per-slice hit/miss accounting
// lives in metrics.RequestMetric (SlicesFromCache/SlicesFromOrigin),
// populated by the orchestrator as it resolves each slice.
func cacheStatus(resp *http.Response) string {
	if resp.StatusCode >= 400 {
		return "BYPASS"
	}
	return "SLICED"
}

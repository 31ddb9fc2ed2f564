// Package prefetch implements the prefetch manager (C11): a sliding
// window classifier over recently observed (url, slice_index) accesses
// that opportunistically promotes soon-to-be-requested slices from L2
// into L1, or re-touches recently seen ones to bias their LRU recency.
// Prefetch work runs on its own bounded worker pool, physically separate
// from the foreground concurrency gate, so a burst of prefetch activity
// can never queue ahead of a client-driven subrequest.
//
// Grounded on the teacher's use of golang.org/x/sync/errgroup for bounded
// concurrency (server/middleware/caching/caching.go, slice/gate), reused
// here in its SetLimit form as a long-lived worker pool rather than a
// per-request fail-fast group.
package prefetch

import (
	"container/ring"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omalloc/tavern/cache"
	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/pkg/rangehdr"
)

// Pattern is the sliding window's current access-pattern classification.
type Pattern int

const (
	PatternRandom Pattern = iota
	PatternSequential
	PatternTemporal
)

func (p Pattern) String() string {
	switch p {
	case PatternSequential:
		return "sequential"
	case PatternTemporal:
		return "temporal"
	default:
		return "random"
	}
}

// Defaults mirror spec.md §4.11.
const (
	DefaultWindowSize     = 16
	DefaultMaxWorkers     = 4
	DefaultMaxAheadSlices = 4
	DefaultSeqThreshold   = 0.7
	DefaultTempThreshold  = 0.5
)

// Config tunes the classifier and the background worker pool.
type Config struct {
	WindowSize     int
	MaxWorkers     int
	MaxAheadSlices int
	SliceSize      int64
	SeqThreshold   float64
	TempThreshold  float64
}

func (c *Config) setDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = DefaultWindowSize
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MaxAheadSlices <= 0 {
		c.MaxAheadSlices = DefaultMaxAheadSlices
	}
	if c.SeqThreshold <= 0 {
		c.SeqThreshold = DefaultSeqThreshold
	}
	if c.TempThreshold <= 0 {
		c.TempThreshold = DefaultTempThreshold
	}
}

type observation struct {
	url        string
	sliceIndex int64
}

// Manager tracks the sliding window and dispatches prefetch work.
type Manager struct {
	cfg   Config
	cache cache.Cache
	log   *log.Helper

	mu    sync.Mutex
	ring  *ring.Ring
	count int

	pool errgroup.Group
}

// New builds a Manager. cache may be nil, which makes Observe a no-op.
// The orchestrator builds no Manager at all when prefetching is disabled
// in config or no cache is configured.
func New(cfg Config, c cache.Cache, logger *log.Helper) *Manager {
	cfg.setDefaults()
	m := &Manager{cfg: cfg, cache: c, log: logger, ring: ring.New(cfg.WindowSize)}
	m.pool.SetLimit(cfg.MaxWorkers)
	return m
}

// Observe records one (url, sliceIndex) access — called for every slice
// resolved by the orchestrator, on both cache hits and misses — and, if
// the window now classifies as Sequential or Temporal, schedules
// background work onto the prefetch pool. Random classification does
// nothing, per spec.
func (m *Manager) Observe(url string, sliceIndex int64) {
	if m.cache == nil || m.cfg.SliceSize <= 0 {
		return
	}

	m.mu.Lock()
	m.ring.Value = observation{url: url, sliceIndex: sliceIndex}
	m.ring = m.ring.Next()
	if m.count < m.cfg.WindowSize {
		m.count++
	}
	obs := m.snapshotLocked()
	m.mu.Unlock()

	switch classify(obs, m.cfg.SeqThreshold, m.cfg.TempThreshold) {
	case PatternSequential:
		go m.scheduleAhead(url, sliceIndex)
	case PatternTemporal:
		go m.reaffirm(obs)
	}
}

// snapshotLocked returns the window's contents in chronological order,
// oldest first. m.mu must be held.
func (m *Manager) snapshotLocked() []observation {
	out := make([]observation, 0, m.count)
	r := m.ring.Move(-m.count)
	for i := 0; i < m.count; i++ {
		out = append(out, r.Value.(observation))
		r = r.Next()
	}
	return out
}

// classify scores the window per spec.md §4.11: Sequential if the
// fraction of consecutive same-object, strictly-increasing observations
// meets seqThreshold; else Temporal if the fraction of repeated keys
// meets tempThreshold; else Random.
func classify(obs []observation, seqThreshold, tempThreshold float64) Pattern {
	if len(obs) < 2 {
		return PatternRandom
	}

	seqHits := 0
	for i := 1; i < len(obs); i++ {
		if obs[i].url == obs[i-1].url && obs[i].sliceIndex > obs[i-1].sliceIndex {
			seqHits++
		}
	}
	if float64(seqHits)/float64(len(obs)-1) >= seqThreshold {
		return PatternSequential
	}

	seen := make(map[observation]int, len(obs))
	repeats := 0
	for _, o := range obs {
		seen[o]++
		if seen[o] > 1 {
			repeats++
		}
	}
	if float64(repeats)/float64(len(obs)) >= tempThreshold {
		return PatternTemporal
	}

	return PatternRandom
}

// scheduleAhead enqueues L2->L1 promotion lookups for the next
// MaxAheadSlices slices after sliceIndex. A miss (including the object's
// final, length-clipped slice, whose true end this arithmetic cannot
// know) is silently ignored — prefetch is strictly advisory.
func (m *Manager) scheduleAhead(url string, sliceIndex int64) {
	for i := int64(1); i <= int64(m.cfg.MaxAheadSlices); i++ {
		key := m.sliceKey(url, sliceIndex+i)
		m.pool.Go(func() error {
			m.cache.Lookup(key)
			return nil
		})
	}
}

// reaffirm re-touches every distinct key currently in the window, biasing
// their LRU recency under a Temporal pattern.
func (m *Manager) reaffirm(obs []observation) {
	seen := make(map[observation]struct{}, len(obs))
	for _, o := range obs {
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		key := m.sliceKey(o.url, o.sliceIndex)
		m.pool.Go(func() error {
			m.cache.Lookup(key)
			return nil
		})
	}
}

func (m *Manager) sliceKey(url string, sliceIndex int64) cache.Key {
	start := sliceIndex * m.cfg.SliceSize
	end := start + m.cfg.SliceSize - 1
	return cache.NewKey(url, rangehdr.ByteRange{Start: start, End: end})
}

// Close waits for any in-flight background prefetch work to finish.
func (m *Manager) Close() error {
	return m.pool.Wait()
}

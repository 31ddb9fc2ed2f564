package conf

import (
	"time"

	middlewarev1 "github.com/omalloc/tavern/api/defined/v1/middleware"
	"github.com/omalloc/tavern/pkg/mapstruct"
)

type Bootstrap struct {
	Strict   bool      `json:"strict" yaml:"strict"`
	Hostname string    `json:"hostname" yaml:"hostname"`
	PidFile  string    `json:"pidfile" yaml:"pidfile"`
	Logger   *Logger   `json:"logger" yaml:"logger"`
	Server   *Server   `json:"server" yaml:"server"`
	Plugin   []*Plugin `json:"plugin" yaml:"plugin"`
	Upstream *Upstream `json:"upstream" yaml:"upstream"`
	Slicing  *Slicing  `json:"slicing" yaml:"slicing"`
}

type Logger struct {
	Level      string `json:"level" yaml:"level"`
	Path       string `json:"path" yaml:"path"`
	Caller     bool   `json:"caller" yaml:"caller"`
	TraceID    bool   `json:"traceid" yaml:"traceid"`
	MaxSize    int    `json:"max_size" yaml:"max_size"`
	MaxAge     int    `json:"max_age" yaml:"max_age"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	Compress   bool   `json:"compress" yaml:"compress"`
	NoPid      bool   `json:"nopid" yaml:"nopid"`
}

type Server struct {
	Addr               string                     `json:"addr" yaml:"addr"`
	ReadTimeout        time.Duration              `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout       time.Duration              `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout        time.Duration              `json:"idle_timeout" yaml:"idle_timeout"`
	ReadHeaderTimeout  time.Duration              `json:"read_header_timeout" yaml:"read_header_timeout"`
	MaxHeaderBytes     int                        `json:"max_header_bytes" yaml:"max_header_bytes"`
	Middleware         []*middlewarev1.Middleware `json:"middleware" yaml:"middleware"`
	PProf              *ServerPProf               `json:"pprof" yaml:"pprof"`
	AccessLog          *ServerAccessLog           `json:"access_log" yaml:"access_log"`
	LocalApiAllowHosts []string                   `json:"local_api_allow_hosts" yaml:"local_api_allow_hosts"`
}

type ServerPProf struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type ServerAccessLog struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	Encrypt struct {
		Enabled bool   `json:"enabled" yaml:"enabled"`
		Secret  string `json:"secret" yaml:"secret"`
	} `json:"encrypt" yaml:"encrypt"`
}

type Upstream struct {
	Balancing           string         `json:"balancing" yaml:"balancing"`
	Address             []string       `json:"address" yaml:"address"`
	MaxIdleConns        int            `json:"max_idle_conns" yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int            `json:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	MaxConnsPerServer   int            `json:"max_conns_per_server" yaml:"max_conns_per_server"`
	InsecureSkipVerify  bool           `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	ResolveAddresses    bool           `json:"resolve_addresses" yaml:"resolve_addresses"`
	Features            map[string]any `json:"features" yaml:"features"`
}

// Slicing configures the sliced fetch-and-cache engine: how an object is
// cut into slices, how many subrequests may run concurrently, the two
// cache tiers, prefetching, and the zero-copy read path.
type Slicing struct {
	SliceSize               uint64           `json:"slice_size" yaml:"slice_size"`
	MaxConcurrentSubrequests int             `json:"max_concurrent_subrequests" yaml:"max_concurrent_subrequests"`
	MaxRetries              int              `json:"max_retries" yaml:"max_retries"`
	RetryBackoffMS          int              `json:"retry_backoff_ms" yaml:"retry_backoff_ms"`
	SlicePatterns           []string         `json:"slice_patterns" yaml:"slice_patterns"`
	EnableCache             bool             `json:"enable_cache" yaml:"enable_cache"`
	CacheTTL                time.Duration    `json:"cache_ttl" yaml:"cache_ttl"`
	L1Bytes                 int64            `json:"l1_bytes" yaml:"l1_bytes"`
	L2                      *SlicingL2       `json:"l2" yaml:"l2"`
	Prefetch                *SlicingPrefetch `json:"prefetch" yaml:"prefetch"`
	ZeroCopy                *SlicingZeroCopy `json:"zero_copy" yaml:"zero_copy"`
	UpstreamAddress         string           `json:"upstream_address" yaml:"upstream_address"`
	Purge                   *SlicingPurge    `json:"purge" yaml:"purge"`
}

type SlicingL2 struct {
	DevicePath        string `json:"device_path" yaml:"device_path"`
	TotalSize         int64  `json:"total_size" yaml:"total_size"`
	BlockSize         int64  `json:"block_size" yaml:"block_size"`
	EnableCompression bool   `json:"enable_compression" yaml:"enable_compression"`
}

type SlicingPrefetch struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	WindowSize    int  `json:"window_size" yaml:"window_size"`
	MaxWorkers    int  `json:"max_workers" yaml:"max_workers"`
	MaxAheadSlices int `json:"max_ahead_slices" yaml:"max_ahead_slices"`
}

type SlicingZeroCopy struct {
	Enabled        bool  `json:"enabled" yaml:"enabled"`
	MmapThreshold  int64 `json:"mmap_threshold" yaml:"mmap_threshold"`
	SendfileEnable bool  `json:"sendfile_enable" yaml:"sendfile_enable"`
}

type SlicingPurge struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Token      string `json:"token" yaml:"token"`
	HeaderName string `json:"header_name" yaml:"header_name"` // bulk-mode selector header, default "Purge-Type"
}

type Plugin struct {
	Name    string         `json:"name" yaml:"name"`
	Options map[string]any `json:"options" yaml:"options"`
}

func (r *Plugin) PluginName() string {
	return r.Name
}

func (r *Plugin) Unmarshal(v any) error {
	return mapstruct.Decode(r.Options, v)
}

package constants

const AppName = "slicer"

// define gw->backend protocol constants
const (
	ProtocolRequestIDKey   = "X-Request-ID"
	ProtocolCacheStatusKey = "X-Cache"
	PrefetchCacheKey       = "X-Prefetch"

	InternalTraceKey  = "i-xtrace"
	InternalStoreURL  = "i-x-store-url"
	InternalSliceHint = "i-x-slice-index"
)

// PurgeHeaderName is the header PURGE requests use to select bulk mode.
const PurgeHeaderName = "Purge-Type"

// PurgeHeaderAll is the PurgeHeaderName value that removes every entry.
const PurgeHeaderAll = "all"

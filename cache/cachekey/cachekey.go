// Package cachekey defines the cache façade's opaque key type as a leaf
// package: both tiers (cache/l1, cache/l2) and the façade itself (cache)
// import it, so neither tier needs to import the façade back.
package cachekey

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/omalloc/tavern/pkg/rangehdr"
)

// HashSize is the width of the URL-hash component of a Key.
const HashSize = sha1.Size

// Key is the cache façade's opaque key: a deterministic function of
// (normalized_url, range.start, range.end). Distinct tuples produce
// distinct keys; identical tuples produce identical keys across runs.
type Key struct {
	urlHash [HashSize]byte
	url     string
	start   int64
	end     int64
}

// New derives the cache key for a slice of the given normalized URL.
func New(normalizedURL string, r rangehdr.ByteRange) Key {
	return Key{
		urlHash: sha1.Sum([]byte(normalizedURL)),
		url:     normalizedURL,
		start:   r.Start,
		end:     r.End,
	}
}

// String renders the key's stable, opaque string form.
func (k Key) String() string {
	return fmt.Sprintf("%x:%d-%d", k.urlHash, k.start, k.end)
}

// URLHashHex is the hex-encoded URL hash, used to derive hash-sharded
// on-disk prefixes for the L2 tier and for URL-prefix purge enumeration.
func (k Key) URLHashHex() string {
	return hex.EncodeToString(k.urlHash[:])
}

// URL returns the normalized URL this key was derived from.
func (k Key) URL() string { return k.url }

// Range returns the byte range this key was derived from.
func (k Key) Range() rangehdr.ByteRange { return rangehdr.ByteRange{Start: k.start, End: k.end} }

// HasURLPrefix reports whether k was derived from the given normalized URL,
// regardless of range — the basis of the purge manager's single-URL mode.
func (k Key) HasURLPrefix(normalizedURL string) bool {
	return k.url == normalizedURL
}

// Package cachecontrol parses the Cache-Control request/response header
// (RFC 7234 §5.2) into its individual directives.
package cachecontrol

import (
	"strconv"
	"strings"
	"time"
)

// Directives holds the parsed Cache-Control directives relevant to an
// HTTP cache decision: whether the response may be stored, and for how
// long.
type Directives struct {
	noStore  bool
	noCache  bool
	private  bool
	public   bool
	maxAge   time.Duration
	hasMaxAge bool
	sMaxAge   time.Duration
	hasSMaxAge bool
}

// Parse splits a raw Cache-Control header value into its directives.
// Unknown or malformed directives are ignored rather than erroring, since
// a cache should degrade to its default policy on garbage input rather
// than fail the request.
func Parse(header string) Directives {
	var d Directives

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, value, _ := strings.Cut(part, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.Trim(strings.TrimSpace(value), `"`)

		switch name {
		case "no-store":
			d.noStore = true
		case "no-cache":
			d.noCache = true
		case "private":
			d.private = true
		case "public":
			d.public = true
		case "max-age":
			if secs, err := strconv.Atoi(value); err == nil {
				d.maxAge = time.Duration(secs) * time.Second
				d.hasMaxAge = true
			}
		case "s-maxage":
			if secs, err := strconv.Atoi(value); err == nil {
				d.sMaxAge = time.Duration(secs) * time.Second
				d.hasSMaxAge = true
			}
		}
	}

	return d
}

// MaxAge returns the effective freshness lifetime, preferring s-maxage
// (shared-cache override) over max-age when both are present. It returns
// 0 when neither directive was set.
func (d Directives) MaxAge() time.Duration {
	if d.hasSMaxAge {
		return d.sMaxAge
	}
	if d.hasMaxAge {
		return d.maxAge
	}
	return 0
}

// Cacheable reports whether the response may be stored at all.
func (d Directives) Cacheable() bool {
	if d.noStore {
		return false
	}
	if d.noCache {
		return false
	}
	return true
}

// NoStore reports whether the no-store directive was present.
func (d Directives) NoStore() bool { return d.noStore }

// Private reports whether the private directive was present.
func (d Directives) Private() bool { return d.private }

// Public reports whether the public directive was present.
func (d Directives) Public() bool { return d.public }

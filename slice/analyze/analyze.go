// Package analyze implements the request analyzer (C2): a pure,
// deterministic decision of whether an inbound request is eligible for
// the slice pipeline. Grounded on the teacher's newObjectIDFromRequest
// precheck in server/middleware/caching/caching.go, generalized from an
// implicit "always slice GETs" policy to the ordered rule set spec.md
// §4.2 names explicitly.
package analyze

import (
	"net/http"
	"path"

	"github.com/omalloc/tavern/internal/constants"
)

// Decision is the analyzer's verdict.
type Decision int

const (
	// Slice means the request should go through the slice pipeline.
	Slice Decision = iota
	// Passthrough means the request should bypass slicing entirely and
	// go straight to the origin.
	Passthrough
)

func (d Decision) String() string {
	if d == Slice {
		return "slice"
	}
	return "passthrough"
}

// Decide implements the 4 ordered, short-circuiting rules of spec.md
// §4.2, with rule 2 read as a recursion guard rather than a literal ban
// on client Range requests: it fires only for the orchestrator's own
// internal subrequests (marked with constants.InternalSliceHint). A
// genuine client Range header is returned verbatim as rawRange rather
// than parsed here — the object's size isn't known until C3's probe
// runs, and rangehdr.Parse needs that size to resolve open-ended
// ("a-", "-b") forms and to clamp an over-long end. The orchestrator
// calls rangehdr.Parse(rawRange, probedSize) once C3 returns, then
// hands the result to the slice planner (C4). patterns is a set of
// glob patterns (path.Match syntax); an empty set makes every GET
// eligible.
func Decide(req *http.Request, patterns []string) (Decision, string, error) {
	// Rule 1: method must be GET.
	if req.Method != http.MethodGet {
		return Passthrough, "", nil
	}

	// Rule 2: an internal subrequest loops back through the same
	// RoundTripper chain; never re-slice it.
	if req.Header.Get(constants.InternalSliceHint) != "" {
		return Passthrough, "", nil
	}

	// Rule 3: non-empty pattern set must match the URL path.
	if len(patterns) > 0 {
		matched := false
		for _, pattern := range patterns {
			if ok, err := path.Match(pattern, req.URL.Path); err == nil && ok {
				matched = true
				break
			}
		}
		if !matched {
			return Passthrough, "", nil
		}
	}

	// Rule 4: empty pattern set means every GET is eligible. A genuine
	// client Range header rides along unresolved.
	return Slice, req.Header.Get("Range"), nil
}

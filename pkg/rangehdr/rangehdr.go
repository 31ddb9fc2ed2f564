// Package rangehdr parses and serializes HTTP Range and Content-Range
// headers for the slicer's single-range subrequest protocol.
//
// https://www.rfc-editor.org/rfc/rfc7233.html
package rangehdr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const bytesPrefix = "bytes="

var (
	ErrHeaderNotFound     = errors.New("rangehdr: Range header not found")
	ErrInvalidFormat      = errors.New("rangehdr: Range header invalid format")
	ErrMultipartRange     = errors.New("rangehdr: multipart ranges are not supported")
	ErrReverseRange       = errors.New("rangehdr: start must not exceed end")
	ErrNegativeRange      = errors.New("rangehdr: range values must be non-negative")
	ErrContentRangeFormat = errors.New("rangehdr: Content-Range header invalid format")
)

// ByteRange is an inclusive byte span [Start, End], 0 <= Start <= End.
type ByteRange struct {
	Start, End int64
}

// New constructs a ByteRange, validating the invariant before it ever
// leaves the constructor.
func New(start, end int64) (ByteRange, error) {
	if start < 0 || end < 0 {
		return ByteRange{}, ErrNegativeRange
	}
	if start > end {
		return ByteRange{}, ErrReverseRange
	}
	return ByteRange{Start: start, End: end}, nil
}

// Length returns end-start+1.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// String renders "bytes=start-end", the wire form used on subrequests.
func (r ByteRange) String() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// ContentRange renders "bytes start-end/size", the wire form of the
// response header for a given range over an object of the given size.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// Parse parses a single-range "Range: bytes=a-b" / "bytes=a-" / "bytes=-b"
// header against an object of the given size. Multipart (comma-separated),
// reverse, and non-integer ranges are rejected with a distinct error;
// malformed input never yields a silently truncated value.
func Parse(header string, size int64) (ByteRange, error) {
	if header == "" {
		return ByteRange{}, ErrHeaderNotFound
	}
	if !strings.HasPrefix(header, bytesPrefix) {
		return ByteRange{}, ErrInvalidFormat
	}

	spec := header[len(bytesPrefix):]
	if strings.Contains(spec, ",") {
		return ByteRange{}, ErrMultipartRange
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return ByteRange{}, ErrInvalidFormat
	}

	startStr, endStr := spec[:dash], spec[dash+1:]

	switch {
	case startStr == "" && endStr == "":
		return ByteRange{}, ErrInvalidFormat

	case startStr == "": // "-b": last b bytes
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix < 0 {
			return ByteRange{}, ErrInvalidFormat
		}
		start := size - suffix
		if start < 0 {
			start = 0
		}
		return New(start, size-1)

	case endStr == "": // "a-": to end
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || start < 0 {
			return ByteRange{}, ErrInvalidFormat
		}
		return New(start, size-1)

	default: // "a-b"
		start, err1 := strconv.ParseInt(startStr, 10, 64)
		end, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil {
			return ByteRange{}, ErrInvalidFormat
		}
		if end >= size {
			end = size - 1
		}
		return New(start, end)
	}
}

// ContentRange is the parsed form of a response Content-Range header.
type ContentRange struct {
	Start, End int64
	ObjSize    int64
}

// ParseContentRange parses "bytes a-b/L". a>b or b>=L are rejected —
// the subrequest executor (C5) treats a mismatch as a fetch error, never
// a silently accepted one.
func ParseContentRange(header string) (ContentRange, error) {
	var cr ContentRange

	if !strings.HasPrefix(header, bytesPrefix[:len(bytesPrefix)-1]+" ") {
		return cr, ErrContentRangeFormat
	}

	body := strings.TrimPrefix(header, "bytes ")
	slash := strings.LastIndex(body, "/")
	if slash < 0 {
		return cr, ErrContentRangeFormat
	}

	spanPart, totalPart := body[:slash], body[slash+1:]
	dash := strings.Index(spanPart, "-")
	if dash < 0 {
		return cr, ErrContentRangeFormat
	}

	start, err1 := strconv.ParseInt(spanPart[:dash], 10, 64)
	end, err2 := strconv.ParseInt(spanPart[dash+1:], 10, 64)
	total, err3 := strconv.ParseInt(totalPart, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return cr, ErrContentRangeFormat
	}
	if start > end || end >= total {
		return cr, ErrContentRangeFormat
	}

	cr.Start, cr.End, cr.ObjSize = start, end, total
	return cr, nil
}

// Matches reports whether the parsed Content-Range exactly matches the
// requested span and previously observed object size.
func (cr ContentRange) Matches(want ByteRange, objSize int64) bool {
	return cr.Start == want.Start && cr.End == want.End && cr.ObjSize == objSize
}

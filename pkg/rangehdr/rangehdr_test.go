package rangehdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		size    int64
		want    ByteRange
		wantErr error
	}{
		{"middle", "bytes=0-99", 1000, ByteRange{0, 99}, nil},
		{"to-end", "bytes=500-", 1000, ByteRange{500, 999}, nil},
		{"suffix", "bytes=-100", 1000, ByteRange{900, 999}, nil},
		{"clamped-end", "bytes=0-9999", 1000, ByteRange{0, 999}, nil},
		{"missing", "", 1000, ByteRange{}, ErrHeaderNotFound},
		{"bad-prefix", "items=0-1", 1000, ByteRange{}, ErrInvalidFormat},
		{"multipart", "bytes=0-1,2-3", 1000, ByteRange{}, ErrMultipartRange},
		{"non-integer", "bytes=a-b", 1000, ByteRange{}, ErrInvalidFormat},
		{"reverse", "bytes=100-1", 1000, ByteRange{}, ErrReverseRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.header, tc.size)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestByteRangeRoundTrip(t *testing.T) {
	r, err := New(10, 20)
	assert.NoError(t, err)
	assert.Equal(t, int64(11), r.Length())
	assert.Equal(t, "bytes=10-20", r.String())
	assert.Equal(t, "bytes 10-20/100", r.ContentRange(100))
}

func TestNewRejectsInvalid(t *testing.T) {
	_, err := New(-1, 5)
	assert.ErrorIs(t, err, ErrNegativeRange)

	_, err = New(10, 5)
	assert.ErrorIs(t, err, ErrReverseRange)
}

func TestParseContentRange(t *testing.T) {
	cr, err := ParseContentRange("bytes 200-1000/67589")
	assert.NoError(t, err)
	assert.Equal(t, ContentRange{Start: 200, End: 1000, ObjSize: 67589}, cr)

	_, err = ParseContentRange("bytes 1000-200/67589")
	assert.ErrorIs(t, err, ErrContentRangeFormat)

	_, err = ParseContentRange("bytes 0-67589/67589")
	assert.ErrorIs(t, err, ErrContentRangeFormat)

	assert.True(t, cr.Matches(ByteRange{200, 1000}, 67589))
	assert.False(t, cr.Matches(ByteRange{200, 999}, 67589))
}

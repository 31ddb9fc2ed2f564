package fetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/omalloc/proxy/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/tavern/contrib/log"
	"github.com/omalloc/tavern/pkg/backoff"
	"github.com/omalloc/tavern/pkg/rangehdr"
	"github.com/omalloc/tavern/slice/plan"
)

type fakeProxy struct {
	responses []*http.Response
	errs      []error
	calls     int
	lastReq   *http.Request
}

func (f *fakeProxy) Do(req *http.Request, collapsed bool, waitTimeout time.Duration) (*http.Response, error) {
	f.lastReq = req
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.responses[i], nil
}

func (f *fakeProxy) DoLoopback(req *http.Request) (*http.Response, error) { return nil, nil }
func (f *fakeProxy) Apply(nodes []selector.Node)                          {}

func newHelper() *log.Helper { return log.NewHelper(log.DefaultLogger) }

func partial(body string, start, end, total int64) *http.Response {
	h := make(http.Header)
	h.Set("Content-Range", rangehdr.ByteRange{Start: start, End: end}.ContentRange(total))
	return &http.Response{
		StatusCode: http.StatusPartialContent,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestFetch_SuccessfulSingleAttempt(t *testing.T) {
	fp := &fakeProxy{responses: []*http.Response{partial("hello", 0, 4, 100)}}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/object.bin", nil)
	spec := plan.SliceSpec{Index: 0, Range: rangehdr.ByteRange{Start: 0, End: 4}}

	body, err := Fetch(context.Background(), fp, req, spec, 100, Config{}, newHelper())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, "bytes=0-4", fp.lastReq.Header.Get("Range"))
	assert.Equal(t, "0", fp.lastReq.Header.Get("i-x-slice-index"))
}

func TestFetch_WrongStatusIsTerminal(t *testing.T) {
	fp := &fakeProxy{responses: []*http.Response{
		{StatusCode: http.StatusOK, Header: make(http.Header), Body: io.NopCloser(strings.NewReader(""))},
	}}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/object.bin", nil)
	spec := plan.SliceSpec{Index: 0, Range: rangehdr.ByteRange{Start: 0, End: 4}}

	_, err := Fetch(context.Background(), fp, req, spec, 100, Config{MaxRetries: 2}, newHelper())
	require.Error(t, err)
	assert.Equal(t, 1, fp.calls, "non-206 status is never retried")
}

func TestFetch_ContentRangeMismatchIsTerminal(t *testing.T) {
	fp := &fakeProxy{responses: []*http.Response{partial("hello", 10, 14, 100)}}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/object.bin", nil)
	spec := plan.SliceSpec{Index: 0, Range: rangehdr.ByteRange{Start: 0, End: 4}}

	_, err := Fetch(context.Background(), fp, req, spec, 100, Config{MaxRetries: 2}, newHelper())
	require.Error(t, err)
	assert.Equal(t, 1, fp.calls, "content-range mismatch is never retried")
}

func TestFetch_BodyLengthMismatchIsTerminal(t *testing.T) {
	fp := &fakeProxy{responses: []*http.Response{partial("hi", 0, 4, 100)}}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/object.bin", nil)
	spec := plan.SliceSpec{Index: 0, Range: rangehdr.ByteRange{Start: 0, End: 4}}

	_, err := Fetch(context.Background(), fp, req, spec, 100, Config{MaxRetries: 2}, newHelper())
	require.Error(t, err)
	assert.Equal(t, 1, fp.calls)
}

func TestFetch_5xxRetriedThenSucceeds(t *testing.T) {
	fp := &fakeProxy{responses: []*http.Response{
		{StatusCode: http.StatusBadGateway, Header: make(http.Header), Body: io.NopCloser(strings.NewReader(""))},
		partial("hello", 0, 4, 100),
	}}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/object.bin", nil)
	spec := plan.SliceSpec{Index: 0, Range: rangehdr.ByteRange{Start: 0, End: 4}}

	body, err := Fetch(context.Background(), fp, req, spec, 100, Config{MaxRetries: 2, Backoff: backoff.Schedule{time.Millisecond}}, newHelper())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
	assert.Equal(t, 2, fp.calls)
}

func TestFetch_RetriesExhaustedIsTerminalError(t *testing.T) {
	fp := &fakeProxy{responses: []*http.Response{
		{StatusCode: http.StatusBadGateway, Header: make(http.Header), Body: io.NopCloser(strings.NewReader(""))},
		{StatusCode: http.StatusBadGateway, Header: make(http.Header), Body: io.NopCloser(strings.NewReader(""))},
	}}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/object.bin", nil)
	spec := plan.SliceSpec{Index: 0, Range: rangehdr.ByteRange{Start: 0, End: 4}}

	_, err := Fetch(context.Background(), fp, req, spec, 100, Config{MaxRetries: 1, Backoff: backoff.Schedule{time.Millisecond}}, newHelper())
	require.Error(t, err)
	assert.Equal(t, 2, fp.calls)
}

func TestFetch_NetworkErrorIsRetried(t *testing.T) {
	fp := &fakeProxy{
		errs:      []error{assert.AnError},
		responses: []*http.Response{nil, partial("hello", 0, 4, 100)},
	}
	req := httptest.NewRequest(http.MethodGet, "https://example.test/object.bin", nil)
	spec := plan.SliceSpec{Index: 0, Range: rangehdr.ByteRange{Start: 0, End: 4}}

	body, err := Fetch(context.Background(), fp, req, spec, 100, Config{MaxRetries: 1, Backoff: backoff.Schedule{time.Millisecond}}, newHelper())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

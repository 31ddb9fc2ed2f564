package proxy

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/omalloc/proxy/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func newTestProxy(t *testing.T, rt roundTripFunc) *ReverseProxy {
	t.Helper()
	p := New(
		WithInitialNodes([]selector.Node{
			selector.NewNode("http", "127.0.0.1:0", selector.RawMetadata("weight", "1")),
		}),
		WithActivateMock(func(c *http.Client) { c.Transport = rt }),
	)
	return p
}

func plainResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestReverseProxy_DoReturnsUpstreamResponse(t *testing.T) {
	p := newTestProxy(t, func(req *http.Request) (*http.Response, error) {
		return plainResponse("hello"), nil
	})

	req, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)

	resp, err := p.Do(req, false, 0)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestReverseProxy_DoDecompressesGzip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, _ = gw.Write([]byte("gzipped-body"))
	require.NoError(t, gw.Close())

	p := newTestProxy(t, func(req *http.Request) (*http.Response, error) {
		resp := plainResponse("")
		resp.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
		resp.Header.Set("Content-Encoding", "gzip")
		return resp, nil
	})

	req, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)

	resp, err := p.Do(req, false, 0)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "gzipped-body", string(body))
}

func TestReverseProxy_DoDecompressesBrotli(t *testing.T) {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = bw.Write([]byte("brotli-body"))
	require.NoError(t, bw.Close())

	p := newTestProxy(t, func(req *http.Request) (*http.Response, error) {
		resp := plainResponse("")
		resp.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))
		resp.Header.Set("Content-Encoding", "br")
		return resp, nil
	})

	req, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)

	resp, err := p.Do(req, false, 0)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "brotli-body", string(body))
}

func TestReverseProxy_DoCollapsesIdenticalInFlightRequests(t *testing.T) {
	var calls int
	block := make(chan struct{})

	p := newTestProxy(t, func(req *http.Request) (*http.Response, error) {
		calls++
		<-block
		return plainResponse("shared"), nil
	})

	req1, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)
	req2, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)

	results := make(chan *http.Response, 2)
	errs := make(chan error, 2)
	for _, r := range []*http.Request{req1, req2} {
		go func(r *http.Request) {
			resp, err := p.Do(r, true, time.Second)
			errs <- err
			results <- resp
		}(r)
	}

	time.Sleep(50 * time.Millisecond)
	close(block)

	for i := 0; i < 2; i++ {
		require.NoError(t, <-errs)
		resp := <-results
		require.NotNil(t, resp)
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "shared", string(body))
	}

	assert.Equal(t, 1, calls)
}

func TestReverseProxy_DoLoopbackUsesFixedLocalAddress(t *testing.T) {
	p := New(WithActivateMock(func(c *http.Client) {
		c.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return plainResponse("local"), nil
		})
	}))

	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:8888/healthz", nil)
	require.NoError(t, err)

	resp, err := p.DoLoopback(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "local", string(body))
}

func TestReverseProxy_ApplyUpdatesSelectorNodes(t *testing.T) {
	p := New()
	p.Apply([]selector.Node{
		selector.NewNode("http", "10.0.0.1:80", selector.RawMetadata("weight", "1")),
	})

	req, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)

	p.activateMock = func(c *http.Client) {
		c.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
			return plainResponse("ok"), nil
		})
	}

	resp, err := p.Do(req, false, 0)
	require.NoError(t, err)
	defer resp.Body.Close()
}

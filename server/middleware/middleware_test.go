package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripperFunc_DelegatesToUnderlyingFunc(t *testing.T) {
	called := false
	f := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusOK}, nil
	})

	req, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)

	resp, err := f.RoundTrip(req)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestChain_OrdersMiddlewareOutsideIn(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}

	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusOK}, nil
	})

	chained := Chain(mark("outer"), mark("inner"))(base)

	req, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)
	_, err = chained.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}

func TestEmptyMiddleware_PassesThroughUnchanged(t *testing.T) {
	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusTeapot}, nil
	})

	req, err := http.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	require.NoError(t, err)

	resp, err := EmptyMiddleware(base).RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestEmptyCleanup_IsCallableNoop(t *testing.T) {
	assert.NotPanics(t, EmptyCleanup)
}

package mod

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/tavern/metrics"
	xhttp "github.com/omalloc/tavern/pkg/x/http"
)

func TestWithNormalFields_RendersSeventeenSpaceSeparatedFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://example.test/obj?x=1", nil)
	req.Header.Set("User-Agent", "test agent")
	req, _ = metrics.WithRequestMetric(req)

	rec := httptest.NewRecorder()
	rw := xhttp.NewResponseRecorder(rec)
	rw.WriteHeader(http.StatusOK)
	_, err := rw.Write([]byte("body"))
	require.NoError(t, err)

	line := string(WithNormalFields(req, rw))
	fields := strings.Split(line, " ")

	// fields 9/10 (referer/user-agent) are space-replaced as a single
	// token each, so the fixed field count is exactly 17.
	assert.Len(t, fields, 17)
	assert.Contains(t, line, "test+agent")
	assert.Contains(t, line, "200")
}

func TestBytesSent_IncludesHeaderAndBodySize(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := xhttp.NewResponseRecorder(rec)
	rw.WriteHeader(http.StatusOK)
	_, err := rw.Write([]byte("payload"))
	require.NoError(t, err)

	assert.Equal(t, xhttp.ResponseHeaderSize(http.StatusOK, rw.Header())+uint64(len("payload")), bytesSent(rw))
}

package mod

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omalloc/tavern/conf"
)

func TestHandleAccessLog_DisabledPassesThroughUnwrapped(t *testing.T) {
	reached := false
	h := HandleAccessLog(&conf.ServerAccessLog{Enabled: false}, func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})

	req := httptest.NewRequest(http.MethodGet, "/obj", nil)
	h(httptest.NewRecorder(), req)
	assert.True(t, reached)
}

func TestHandleAccessLog_EmptyPathStillServesRequest(t *testing.T) {
	h := HandleAccessLog(&conf.ServerAccessLog{Enabled: true, Path: ""}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/obj", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestHandleAccessLog_WritesLineToConfiguredPath(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "access", "access.log")

	h := HandleAccessLog(&conf.ServerAccessLog{Enabled: true, Path: logPath}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("served"))
	})

	req := httptest.NewRequest(http.MethodGet, "https://example.test/obj", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(logPath)
		return err == nil && len(data) > 0
	}, time.Second, 10*time.Millisecond)
}

package adapter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/plugin-signal/pkg/signal"
)

func newFactory(t *testing.T, dir string) *signal.Factory {
	t.Helper()
	cfg := signal.DefaultConfig()
	cfg.ShmDir = dir
	f, err := signal.NewFactory(cfg, OTelOptions()...)
	require.NoError(t, err)
	return f
}

func status(t *testing.T, h http.Handler, path string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestHealthAdapter(t *testing.T) {
	f := newFactory(t, t.TempDir())
	a := NewHealthAdapter()
	a.Register("main", f, 0)

	assert.Equal(t, http.StatusOK, status(t, a.Handler(), "/live"))
	assert.Equal(t, http.StatusOK, status(t, a.Handler(), "/ready"))

	require.NoError(t, f.Close())
	assert.Equal(t, http.StatusServiceUnavailable, status(t, a.Handler(), "/live"))
}

func TestHealthAdapterNotReady(t *testing.T) {
	f := newFactory(t, "/nonexistent/signal/dir")
	defer f.Close()
	a := NewHealthAdapter()
	a.Register("broken", f, 0)

	assert.Equal(t, http.StatusOK, status(t, a.Handler(), "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(t, a.Handler(), "/ready"))
}

package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, drain time.Duration) *BaseServer {
	t.Helper()
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "localhost:0",
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration:            drain,
		GracefulShutdownDuration: time.Second,
	})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, srv *BaseServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestBaseServer_Liveness(t *testing.T) {
	srv := newTestServer(t, 0)

	w := get(t, srv, "/livez")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"alive"}`, w.Body.String())
}

func TestBaseServer_DrainTogglesReadiness(t *testing.T) {
	srv := newTestServer(t, 0)

	require.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)

	w := get(t, srv, "/drain")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"draining"}`, w.Body.String())
	require.Equal(t, http.StatusServiceUnavailable, get(t, srv, "/readyz").Code)

	// Draining twice reports the state instead of flipping it again.
	w = get(t, srv, "/drain")
	require.JSONEq(t, `{"status":"already draining"}`, w.Body.String())

	require.Equal(t, http.StatusOK, get(t, srv, "/undrain").Code)
	require.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
}

func TestBaseServer_ShutdownWaitsOutDrainPeriod(t *testing.T) {
	const drain = 50 * time.Millisecond
	srv := newTestServer(t, drain)

	start := time.Now()
	srv.Shutdown()
	require.GreaterOrEqual(t, time.Since(start), drain)
	require.False(t, srv.isReady.Load())
}

func TestBaseServer_ShutdownSkipsDrainWhenAlreadyDrained(t *testing.T) {
	srv := newTestServer(t, time.Minute)

	require.Equal(t, http.StatusOK, get(t, srv, "/drain").Code)

	done := make(chan struct{})
	go func() {
		srv.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown waited for the drain period on an already drained server")
	}
}

package httpserver

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PratikDhanave/interaction-analytics-service/internal/auth"
	"github.com/PratikDhanave/interaction-analytics-service/internal/config"
	"github.com/PratikDhanave/interaction-analytics-service/internal/metrics"
	"github.com/PratikDhanave/interaction-analytics-service/internal/session"
	"github.com/PratikDhanave/interaction-analytics-service/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	sessions := session.New(session.Options{Sink: store.NewSink(st), Logger: logger, Metrics: m, TTL: time.Hour})
	t.Cleanup(sessions.Close)

	cfg := config.Default()
	cfg.APIKeys = map[string]string{"key-1": "tenant1"}

	return NewRouter(Deps{
		Config:   cfg,
		Store:    st,
		Sessions: sessions,
		Gatherer: registry,
		Logger:   logger,
	}), st
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	w := serve(r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReady(t *testing.T) {
	r, st := newTestRouter(t)

	w := serve(r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","sessions":0}`, w.Body.String())

	st.Close()
	w = serve(r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")
}

func TestBeaconScript(t *testing.T) {
	r, _ := newTestRouter(t)

	w := serve(r, http.MethodGet, "/beacon.js", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/javascript")
	assert.Contains(t, w.Body.String(), "new URL('signals'")
	assert.Contains(t, w.Body.String(), auth.HeaderAPIKey)
	assert.Contains(t, w.Body.String(), "text: control ? (el.textContent || '') : ''")
}

// Registry.Dispatch stops at unload, so nothing may be queued behind it.
func TestBeaconQueuesUnloadLast(t *testing.T) {
	script := string(beaconJS)

	start := strings.Index(script, "function flush(")
	end := strings.Index(script, "function push(")
	require.True(t, start >= 0 && end > start)
	assert.NotContains(t, script[start:end], "push(", "flush must not append signals")

	assert.Regexp(t, regexp.MustCompile(`push\(\{ type: 'unload' \}\);\s*flush\(true\);`), script)
	assert.Regexp(t, regexp.MustCompile(`pendingMove = true;\s*push\(\{ type: 'mousemove' \}\);`), script)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t)

	w := serve(r, http.MethodOptions, "/signals", "", map[string]string{"Origin": "https://example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), auth.HeaderAPIKey)
}

func TestAuthenticatedRoutesRequireKey(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, path := range []string{"/events", "/signals"} {
		w := serve(r, http.MethodPost, path, `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := serve(r, http.MethodGet, "/metrics?event_name=x", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignalsThroughRouterUpdatesPrometheus(t *testing.T) {
	r, _ := newTestRouter(t)
	headers := map[string]string{auth.HeaderAPIKey: "key-1", "Content-Type": "application/json"}

	w := serve(r, http.MethodPost, "/signals", `{"session_id":"s1","signals":[{"type":"load"},{"type":"keypress"}]}`, headers)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"session_id":"s1","accepted":2}`, w.Body.String())

	w = serve(r, http.MethodGet, "/ready", "", nil)
	assert.JSONEq(t, `{"status":"ready","sessions":1}`, w.Body.String())

	w = serve(r, http.MethodGet, "/prometheus", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `type="keypress"`)
	assert.Contains(t, w.Body.String(), "active_sessions 1")
}

package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New()

	m.ObserveRequest("GET /api/core/stats/", http.MethodGet, 200, 5*time.Millisecond)
	m.ObserveRequest("GET /api/core/stats/", http.MethodGet, 200, 7*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET /api/core/stats/", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "GET", "404")))
}

func TestHandlerExposesDomainCounters(t *testing.T) {
	m := New()
	m.Redemptions.WithLabelValues("success").Inc()
	m.WebSocketClients.WithLabelValues("chat").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `sangam_redemptions_total{outcome="success"} 1`)
	assert.Contains(t, string(body), `sangam_websocket_clients{channel="chat"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

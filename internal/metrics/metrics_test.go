package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.TicksSkipped.WithLabelValues(ReasonSourceUnavailable).Inc()
	m.TicksSkipped.WithLabelValues(ReasonSourceUnavailable).Inc()
	m.TicksIngested.WithLabelValues("SOL").Add(3)

	assert.Equal(t, 2.0, counterValue(t, reg, "sentry_ticks_skipped_total"))
	assert.Equal(t, 3.0, counterValue(t, reg, "sentry_ticks_ingested_total"))

	// A second registration on the same registry must panic.
	assert.Panics(t, func() { NewMetrics(reg) })
}

// counterValue sums every series of a counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func healthz(t *testing.T, h *HealthStatus) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body.Status
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus()
	code, status := healthz(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status, "optional sinks do not degrade health")

	h.EnableSQLite(true)
	h.EnableRedis(false)
	code, status = healthz(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", status)

	h.EnableSQLite(false)
	_, status = healthz(t, h)
	assert.Equal(t, "unhealthy", status)
}

func TestHealthStatus_StaleTokens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := NewHealthStatus()
	h.now = func() time.Time { return now }
	h.started = now.Add(-time.Hour)
	h.StaleAfter = 15 * time.Minute
	h.Watch("A", "B")

	// Neither token has ticked within the window.
	_, status := healthz(t, h)
	assert.Equal(t, "unhealthy", status)

	h.RecordTick("A", now.Add(-5*time.Minute))
	_, status = healthz(t, h)
	assert.Equal(t, "degraded", status)

	h.RecordTick("B", now.Add(-time.Minute))
	report, code := h.Report()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", report.Status)
	require.Len(t, report.Tokens, 2)
	assert.Equal(t, "A", report.Tokens[0].Token)
	assert.Equal(t, "5m0s", report.Tokens[0].Age)
	assert.False(t, report.Tokens[1].Stale)
}

func TestServer_Routes(t *testing.T) {
	srv := NewServer(":0", NewHealthStatus())
	srv.Mux.HandleFunc("/extra", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	ts := httptest.NewServer(srv.Mux)
	defer ts.Close()

	for path, want := range map[string]int{"/metrics": 200, "/healthz": 200, "/extra": http.StatusTeapot} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

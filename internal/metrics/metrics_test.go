package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RegistrationCreated(100)
	m.RegistrationDeleted()
	m.Rollback(false)
	m.Transition("IDLE", "PAYMENT")
	m.Receipt(200)
	m.ServiceSale(60)
	m.ObserveRequest("GET", "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()
	m.RegistrationCreated(250)
	m.RegistrationCreated(0)
	m.RegistrationDeleted()
	m.Rollback(true)
	m.Rollback(false)
	m.ServiceSale(140)

	require.Equal(t, 2.0, testutil.ToFloat64(m.registrations.WithLabelValues("create")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.registrations.WithLabelValues("delete")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rollbacks.WithLabelValues("failed")))
	require.Equal(t, 390.0, testutil.ToFloat64(m.collected))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Transition("IDLE", "PAYMENT")
	m.Receipt(200)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Contains(t, string(body), `festreg_lifecycle_transitions_total{from="IDLE",to="PAYMENT"} 1`)
	require.Contains(t, string(body), `festreg_receipts_total{status="200"} 1`)
	require.Contains(t, string(body), "go_goroutines")
}

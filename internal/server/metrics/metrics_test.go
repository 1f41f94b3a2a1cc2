package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthOperation_Counts(t *testing.T) {
	m := New()

	m.AuthOperation("login", OutcomeSuccess)
	m.AuthOperation("login", OutcomeSuccess)
	m.AuthOperation("login", OutcomeFailure)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authOperations.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authOperations.WithLabelValues("login", OutcomeFailure)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.authOperations.WithLabelValues("refresh", OutcomeSuccess)))
}

func TestAuditFailure_Counts(t *testing.T) {
	m := New()
	m.AuditFailure("Logout")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditFailures.WithLabelValues("Logout")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthOperation("login", OutcomeSuccess)
		m.AuditFailure("Refresh")
		m.ObserveRPC("/x", "OK", time.Millisecond)
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.AuthOperation("register", OutcomeSuccess)
	m.ObserveRPC("/authkeeper.v1.AuthService/Login", "OK", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `authkeeper_auth_operations_total{operation="register",outcome="success"} 1`)
	assert.Contains(t, out, `authkeeper_grpc_request_duration_seconds_count{code="OK",method="/authkeeper.v1.AuthService/Login"} 1`)
	assert.Contains(t, out, "go_goroutines")
}

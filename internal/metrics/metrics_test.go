package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.Login(OutcomeSuccess)
	m.Login("invalid_credentials")
	m.Login(OutcomeSuccess)
	m.Refresh("session_compromised")
	m.Activation(OutcomeSuccess)
	m.Register(OutcomeSuccess)
	m.RPC("/credential.v1.AuthService/Login", "OK")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.login.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.login.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refresh.WithLabelValues("session_compromised")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rpc.WithLabelValues("/credential.v1.AuthService/Login", "OK")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Login(OutcomeSuccess)
	m.Refresh(OutcomeError)
	m.Activation(OutcomeSuccess)
	m.Register(OutcomeSuccess)
	m.RPC("x", "OK")
	assert.Nil(t, m.Registry())
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Refresh(OutcomeSuccess)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `credential_refresh_total{outcome="success"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

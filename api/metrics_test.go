package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeRequest(http.MethodGet, 200, time.Millisecond)
		m.observeQuery("succeeded", time.Second, 3, true)
		m.csrfRejected(CodeCSRFTokenMissing)
		m.rateLimitHit("global")
		m.recordEvent(AuditLogin)
		m.PoolCreated("db:5432/iot")
		m.TrackPools(func() int { return 1 })
		m.TrackConns(func() int { return 1 })
	})
}

func TestMetricsQueryOutcomes(t *testing.T) {
	m := NewMetrics()
	m.observeQuery("succeeded", 20*time.Millisecond, 10, false)
	m.observeQuery("succeeded", 30*time.Millisecond, 10000, true)
	m.observeQuery("timed_out", 5*time.Second, 0, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.queries.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("timed_out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.truncated))
	assert.Equal(t, 2, testutil.CollectAndCount(m.queryDuration))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.csrfRejected(CodeCSRFTokenMismatch)
	m.csrfRejected(CodeCSRFTokenMismatch)
	m.rateLimitHit("login")
	m.recordEvent(AuditExportXLSX)
	m.PoolCreated("db:5432/iot")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.csrfRejections.WithLabelValues(CodeCSRFTokenMismatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("login")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditEvents.WithLabelValues(string(AuditExportXLSX))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.poolsCreated))
}

func TestMetricsHandlerExposesPools(t *testing.T) {
	m := NewMetrics()
	live := 3
	m.TrackPools(func() int { return live })
	m.TrackConns(func() int { return 2 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iqp_db_pools 3")
	assert.Contains(t, rec.Body.String(), "iqp_db_connections_acquired 2")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAuditLoggerCountsEvents(t *testing.T) {
	m := NewMetrics()
	audit := newAuditLogger(zaptest.NewLogger(t), m)
	r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)

	audit.logUser(AuditLogin, r, "user-1")
	audit.log(AuditError, r)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditEvents.WithLabelValues(string(AuditLogin))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditEvents.WithLabelValues(string(AuditError))))
}

package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstat/forensics/internal/backend"
	"github.com/blockstat/forensics/internal/store"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordAnalysis(OriginSynthetic, 72, 5*time.Millisecond)
	m.RecordAnalysis(OriginSynthetic, 40, time.Millisecond)
	m.RecordAnalysis(OriginBackend, 10, time.Second)
	m.RecordFallback("timeout")
	m.SchemaRejections.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(OriginSynthetic)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(OriginBackend)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemaRejections))
	assert.Equal(t, 1, testutil.CollectAndCount(m.DatasetRiskScore))
}

func TestMetrics_Independent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordFallback("x")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FallbacksTotal.WithLabelValues("x")))
	assert.Same(t, Default(), Default())
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `forensics_http_requests_total{method="GET",path="/health",status="200"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

type fakePinger struct{ err error }

func (f fakePinger) Health(context.Context) (*backend.Health, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &backend.Health{Status: "healthy", Service: "token-forensics", Version: "1.0.0"}, nil
}

type brokenStore struct{ store.Nop }

func (brokenStore) Get(context.Context, string) (*store.Entry, error) {
	return nil, errors.New("connection refused")
}

func TestHealthMonitor_Aggregate(t *testing.T) {
	ctx := context.Background()
	m := NewHealthMonitor(time.Minute)
	m.Register("backend", BackendCheck(fakePinger{}))
	m.Register("store", StoreCheck(store.NewMemoryStore(0)))

	h := m.Check(ctx)
	assert.Equal(t, StatusHealthy, h.Status)
	require.Len(t, h.Components, 2)
	assert.Equal(t, "token-forensics", h.Components["backend"].Details["service"])

	m.Register("backend", BackendCheck(fakePinger{err: errors.New("dial tcp: refused")}))
	h = m.Check(ctx)
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Contains(t, h.Components["backend"].Message, "refused")

	m.Register("store", StoreCheck(brokenStore{}))
	h = m.Check(ctx)
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, "store", h.Components["store"].Name)
}

func TestHealthMonitor_RunStopsOnCancel(t *testing.T) {
	m := NewHealthMonitor(10 * time.Millisecond)
	m.Register("store", StoreCheck(store.Nop{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := m.Snapshot().Components["store"]
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

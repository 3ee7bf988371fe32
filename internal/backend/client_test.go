package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstat/forensics/internal/export"
	"github.com/blockstat/forensics/internal/generator"
	"github.com/blockstat/forensics/internal/graph"
)

const testToken = "0x1234567890123456789012345678901234567890"

func newTestServer(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_SubmitAndResults(t *testing.T) {
	d, err := generator.Default(testToken)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, testToken, req.TokenAddress)
		w.WriteHeader(http.StatusAccepted)
		writeJSON(w, Submission{AnalysisID: "a-1", Status: "processing"})
	})
	mux.HandleFunc("GET /api/v1/analysis/a-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d)
	})
	c := newTestServer(t, mux)

	sub, err := c.Submit(context.Background(), Request{TokenAddress: testToken, DaysBack: 7})
	require.NoError(t, err)
	assert.Equal(t, "a-1", sub.AnalysisID)

	got, err := c.Results(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, int64(2), c.Stats().Requests)
}

func TestClient_ResultsSchemaError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analysis/bad", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"nodes":[],"links":[{"source":"x","target":"y","value":1,"type":"trade","count":1}],
			"riskScore":120,"metrics":{"giniCoefficient":0,"washTradingScore":0,"mixerConnectionsCount":0,"suspiciousClustersDetected":0},
			"topInfluentialWallets":[],"detectedCommunities":[],"redFlags":[]}`))
	})
	c := newTestServer(t, mux)

	_, err := c.Results(context.Background(), "bad")
	var schemaErr *graph.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.NotEmpty(t, schemaErr.RangeViolations())
}

func TestClient_Poll(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analysis/a-1/status", func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		st := Status{AnalysisID: "a-1", Status: StateFetchingData, Progress: int(n) * 30}
		if n >= 3 {
			st.Status, st.Progress = StateCompleted, 100
		}
		writeJSON(w, st)
	})
	c := newTestServer(t, mux)

	var seen []int
	st, err := c.Poll(context.Background(), "a-1", time.Millisecond, 10, func(s Status) {
		seen = append(seen, s.Progress)
	})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.Status)
	assert.Equal(t, []int{30, 60, 100}, seen)
}

func TestClient_PollStepTimings(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analysis/a-4/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"analysisId":"a-4","status":"completed","progress":100,` +
			`"currentStep":"done","startedAt":"2024-01-01T00:00:00Z","completedAt":"2024-01-01T00:00:03Z",` +
			`"stepTimings":{"fetching_data":"1.20s","building_graph":"2.20s"},"totalDuration":"3.40s"}`))
	})
	c := newTestServer(t, mux)

	st, err := c.Poll(context.Background(), "a-4", time.Millisecond, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.Status)
	assert.Equal(t, "1.20s", st.StepTimings["fetching_data"])
	assert.Equal(t, "3.40s", st.TotalDuration)
	require.NotNil(t, st.CompletedAt)
}

func TestClient_PollFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analysis/a-2/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Status{AnalysisID: "a-2", Status: StateFailed, ErrorMessage: "upstream quota"})
	})
	c := newTestServer(t, mux)

	_, err := c.Poll(context.Background(), "a-2", time.Millisecond, 10, nil)
	var failed *AnalysisFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "upstream quota", failed.Message)
}

func TestClient_PollExhausted(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analysis/a-3/status", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, Status{AnalysisID: "a-3", Status: StateBuildingGraph, Progress: 50})
	})
	c := newTestServer(t, mux)

	_, err := c.Poll(context.Background(), "a-3", time.Millisecond, 4, nil)
	assert.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, int32(4), calls.Load())
}

func TestClient_PollCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analysis/a-4/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Status{AnalysisID: "a-4", Status: StateQueued})
	})
	c := newTestServer(t, mux)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Poll(ctx, "a-4", time.Hour, 3, func(Status) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("GET /api/v1/analyses", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 2 {
			http.Error(w, "blip", http.StatusBadGateway)
			return
		}
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, Listing{Total: 1, Analyses: []Summary{{ID: "a-1", TokenAddress: testToken, Status: StateCompleted}}})
	})
	c := newTestServer(t, mux)

	// Health is not retried.
	_, err := c.Health(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())

	l, err := c.List(context.Background(), 5, 0)
	require.NoError(t, err)
	require.Len(t, l.Analyses, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ExportNotRetriedOn404(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analysis/missing/export", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		http.Error(w, "not found", http.StatusNotFound)
	})
	c := newTestServer(t, mux)

	_, err := c.Export(context.Background(), "missing", export.CSV)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

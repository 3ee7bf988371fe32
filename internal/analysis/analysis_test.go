package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstat/forensics/internal/backend"
	"github.com/blockstat/forensics/internal/bus"
	"github.com/blockstat/forensics/internal/generator"
	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/observability"
	"github.com/blockstat/forensics/internal/store"
)

const (
	lowerToken    = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	checksumToken = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
)

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"0x1234567890123456789012345678901234567890",
		"0xABCDEFabcdef0000000000000000000000000000",
	}
	for _, a := range valid {
		assert.NoError(t, ValidateAddress(a), a)
	}

	invalid := []string{
		"0x123",
		"1234567890123456789012345678901234567890no0x",
		"1234567890123456789012345678901234567890",
		"0X1234567890123456789012345678901234567890",
		"0x123456789012345678901234567890123456789g",
		"0x12345678901234567890123456789012345678901",
		" 0x1234567890123456789012345678901234567890",
		"",
	}
	for _, a := range invalid {
		assert.ErrorIs(t, ValidateAddress(a), ErrInvalidAddress, a)
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("  " + lowerToken + "\n")
	require.NoError(t, err)
	assert.Equal(t, checksumToken, got)

	_, err = NormalizeAddress("0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

// fakeBackend scripts the backend calls.
type fakeBackend struct {
	submitErr  error
	pollErr    error
	results    *graph.Dataset
	resultsErr error
	progress   []int
	delay      time.Duration

	submits atomic.Int32
}

func (f *fakeBackend) Submit(ctx context.Context, req backend.Request) (*backend.Submission, error) {
	f.submits.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &backend.Submission{AnalysisID: "remote-1", Status: "queued"}, nil
}

func (f *fakeBackend) Poll(ctx context.Context, id string, _ time.Duration, _ int, onProgress func(backend.Status)) (*backend.Status, error) {
	for _, p := range f.progress {
		onProgress(backend.Status{AnalysisID: id, Status: backend.StateBuildingGraph, Progress: p})
	}
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	return &backend.Status{AnalysisID: id, Status: backend.StateCompleted, Progress: 100}, nil
}

func (f *fakeBackend) Results(ctx context.Context, id string) (*graph.Dataset, error) {
	return f.results, f.resultsErr
}

func newService(t *testing.T, be Backend, st store.Store, hub *bus.Hub) (*Service, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetrics()
	opts := Options{
		Store:     st,
		Hub:       hub,
		Metrics:   m,
		Generator: generator.DefaultConfig(),
	}
	if be != nil {
		opts.Backend = be
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s, m
}

func TestAnalyze_InvalidAddressNeverReachesBackend(t *testing.T) {
	be := &fakeBackend{}
	s, m := newService(t, be, nil, nil)

	_, err := s.Analyze(context.Background(), "0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Equal(t, int32(0), be.submits.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(observability.OriginSynthetic)))
}

func TestAnalyze_SyntheticOnly(t *testing.T) {
	s, m := newService(t, nil, nil, nil)

	res, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginSynthetic, res.Origin)
	assert.Equal(t, checksumToken, res.Token)
	assert.Len(t, res.ID, 36)
	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.Index())

	want, err := generator.Default(checksumToken)
	require.NoError(t, err)
	assert.Equal(t, want, res.Dataset)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(observability.OriginSynthetic)))
}

func TestAnalyze_Backend(t *testing.T) {
	d, err := generator.NewSeeded(5).Generate(checksumToken)
	require.NoError(t, err)

	hub := bus.NewHub(16)
	events, cancel := hub.Subscribe()
	defer cancel()

	be := &fakeBackend{results: d, progress: []int{30, 60}}
	st := store.NewMemoryStore(0)
	s, m := newService(t, be, st, hub)

	res, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginBackend, res.Origin)
	assert.Equal(t, "remote-1", res.ID)
	assert.Same(t, d, res.Dataset)

	var progress []int
	var ready *bus.DatasetReady
	for len(events) > 0 {
		switch e := (<-events).(type) {
		case bus.AnalysisProgress:
			progress = append(progress, e.Progress)
			assert.Equal(t, "remote-1", e.CorrelationID)
		case bus.DatasetReady:
			ready = &e
		}
	}
	assert.Equal(t, []int{30, 60}, progress)
	require.NotNil(t, ready)
	assert.Equal(t, observability.OriginBackend, ready.Origin)
	assert.Equal(t, res.Verdict().String(), ready.Verdict)

	// Second call is served from the cache.
	again, err := s.Analyze(context.Background(), checksumToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginCache, again.Origin)
	assert.Equal(t, "remote-1", again.ID)
	assert.Equal(t, observability.OriginBackend, again.Source)
	assert.Empty(t, again.Warnings)
	assert.Equal(t, int32(1), be.submits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysesTotal.WithLabelValues(observability.OriginCache)))

	// Cache hits are not announced.
	assert.Empty(t, events)

	require.NoError(t, s.Invalidate(context.Background(), lowerToken))
	_, err = s.Cached(context.Background(), lowerToken)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAnalyze_Fallback(t *testing.T) {
	tests := []struct {
		name   string
		be     *fakeBackend
		reason string
	}{
		{"transport", &fakeBackend{submitErr: errors.New("dial tcp: connection refused")}, "transport"},
		{"http", &fakeBackend{submitErr: &backend.HTTPError{StatusCode: 503}}, "http_status"},
		{"failed", &fakeBackend{pollErr: &backend.AnalysisFailedError{AnalysisID: "remote-1", Message: "rpc down"}}, "failed"},
		{"exhausted", &fakeBackend{pollErr: fmt.Errorf("%w: remote-1 after 3 attempts", backend.ErrPollExhausted)}, "exhausted"},
		{"schema", &fakeBackend{resultsErr: fmt.Errorf("backend: results: %w", &graph.SchemaError{Problems: []error{errors.New("bad")}})}, "schema"},
		{"timeout", &fakeBackend{submitErr: fmt.Errorf("request: %w", context.DeadlineExceeded)}, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := bus.NewHub(16)
			events, cancel := hub.Subscribe(bus.TopicAnalysisFallback)
			defer cancel()

			s, m := newService(t, tt.be, nil, hub)
			res, err := s.Analyze(context.Background(), lowerToken)
			require.NoError(t, err)

			assert.Equal(t, observability.OriginSynthetic, res.Origin)
			require.Len(t, res.Warnings, 1)
			assert.Contains(t, res.Warnings[0], tt.reason)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues(tt.reason)))

			require.Len(t, events, 1)
			assert.Equal(t, tt.reason, (<-events).(bus.AnalysisFallback).Reason)

			wantRejections := 0.0
			if tt.reason == "schema" {
				wantRejections = 1
			}
			assert.Equal(t, wantRejections, testutil.ToFloat64(m.SchemaRejections))
		})
	}
}

func TestAnalyze_CallerCancellationIsNotMasked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, _ := newService(t, &fakeBackend{submitErr: context.Canceled}, nil, nil)
	_, err := s.Analyze(ctx, lowerToken)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_CachedFallbackKeepsSource(t *testing.T) {
	be := &fakeBackend{submitErr: errors.New("dial tcp: connection refused")}
	s, err := New(Options{
		Backend:             be,
		Store:               store.NewMemoryStore(0),
		Metrics:             observability.NewMetrics(),
		Generator:           generator.DefaultConfig(),
		SyntheticRetryAfter: time.Hour,
	})
	require.NoError(t, err)

	first, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginSynthetic, first.Origin)
	assert.True(t, first.Synthetic())

	again, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginCache, again.Origin)
	assert.Equal(t, observability.OriginSynthetic, again.Source)
	assert.True(t, again.Synthetic())
	require.Len(t, again.Warnings, 1)
	assert.Contains(t, again.Warnings[0], "synthetic dataset")
	assert.Equal(t, int32(1), be.submits.Load())

	cached, err := s.Cached(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.True(t, cached.Synthetic())
}

func TestAnalyze_StaleFallbackRetriesBackend(t *testing.T) {
	be := &fakeBackend{submitErr: errors.New("dial tcp: connection refused")}
	hub := bus.NewHub(16)
	s, err := New(Options{
		Backend:             be,
		Store:               store.NewMemoryStore(0),
		Hub:                 hub,
		Metrics:             observability.NewMetrics(),
		Generator:           generator.DefaultConfig(),
		SyntheticRetryAfter: time.Nanosecond,
	})
	require.NoError(t, err)

	first, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.True(t, first.Synthetic())

	// The backend recovers.
	d, err := generator.NewSeeded(9).Generate(checksumToken)
	require.NoError(t, err)
	be.submitErr = nil
	be.results = d

	events, cancel := hub.Subscribe(bus.TopicDatasetReady)
	defer cancel()

	res, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginBackend, res.Origin)
	assert.Equal(t, observability.OriginBackend, res.Source)
	assert.Empty(t, res.Warnings)
	assert.Same(t, d, res.Dataset)
	assert.Equal(t, int32(2), be.submits.Load())
	require.Len(t, events, 1)

	// The backend result replaced the fallback in the cache.
	again, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginCache, again.Origin)
	assert.False(t, again.Synthetic())
	assert.Equal(t, int32(2), be.submits.Load())
	assert.Len(t, events, 1)
}

func TestAnalyze_FallbackWithoutBackendIsServedFromCache(t *testing.T) {
	s, _ := newService(t, nil, store.NewMemoryStore(0), nil)

	_, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	again, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginCache, again.Origin)
	assert.True(t, again.Synthetic())
	assert.Empty(t, again.Warnings)
}

func TestAnalyze_JoinedCallerSurvivesFirstCallerCancel(t *testing.T) {
	d, err := generator.Default(checksumToken)
	require.NoError(t, err)
	be := &fakeBackend{results: d, delay: 300 * time.Millisecond}
	s, _ := newService(t, be, store.NewMemoryStore(0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Analyze(ctx, lowerToken)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type outcome struct {
		res *Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := s.Analyze(context.Background(), lowerToken)
		second <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, observability.OriginBackend, got.res.Origin)
	assert.Equal(t, "remote-1", got.res.ID)
	assert.Equal(t, int32(1), be.submits.Load())
}

func TestAnalyze_RunTimeoutFallsBack(t *testing.T) {
	be := &fakeBackend{delay: time.Second}
	s, err := New(Options{
		Backend:    be,
		Metrics:    observability.NewMetrics(),
		Generator:  generator.DefaultConfig(),
		RunTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	res, err := s.Analyze(context.Background(), lowerToken)
	require.NoError(t, err)
	assert.Equal(t, observability.OriginSynthetic, res.Origin)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "timeout")
}

func TestAnalyze_ConcurrentCallsShareOneRun(t *testing.T) {
	d, err := generator.Default(checksumToken)
	require.NoError(t, err)
	be := &fakeBackend{results: d, delay: 50 * time.Millisecond}
	s, _ := newService(t, be, store.NewMemoryStore(0), nil)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Analyze(context.Background(), lowerToken)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	// Late callers hit the cache instead of the backend.
	assert.Equal(t, int32(1), be.submits.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "remote-1", r.ID)
	}
}

func TestNew_RejectsInvalidGenerator(t *testing.T) {
	cfg := generator.DefaultConfig()
	cfg.MixerCount = 0
	_, err := New(Options{Generator: cfg})
	assert.ErrorIs(t, err, generator.ErrInvalidConfig)
}

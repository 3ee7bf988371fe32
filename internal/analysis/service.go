// Package analysis produces the dataset for a token: from the cache, from
// the analysis backend, or synthesized locally when the backend cannot
// deliver.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/blockstat/forensics/internal/backend"
	"github.com/blockstat/forensics/internal/bus"
	"github.com/blockstat/forensics/internal/generator"
	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/observability"
	"github.com/blockstat/forensics/internal/query"
	"github.com/blockstat/forensics/internal/risk"
	"github.com/blockstat/forensics/internal/store"
)

// Backend is the part of the backend client the service drives.
type Backend interface {
	Submit(ctx context.Context, req backend.Request) (*backend.Submission, error)
	Poll(ctx context.Context, id string, interval time.Duration, maxAttempts int, onProgress func(backend.Status)) (*backend.Status, error)
	Results(ctx context.Context, id string) (*graph.Dataset, error)
}

// Options wires the service. Only Generator is required.
type Options struct {
	Backend         Backend // nil serves synthetic data only
	Store           store.Store
	Hub             *bus.Hub
	Metrics         *observability.Metrics
	Generator       generator.Config
	Seed            int64
	DaysBack        int
	SampleSize      int
	PollInterval    time.Duration
	MaxPollAttempts int
	Producer        string // instance id stamped on events

	// RunTimeout bounds one shared run. It defaults to the full polling
	// window plus a minute.
	RunTimeout time.Duration

	// SyntheticRetryAfter is how long a cached synthetic fallback is served
	// before the backend is tried again. Unused without a backend.
	SyntheticRetryAfter time.Duration
}

// DefaultSyntheticRetryAfter is the default of Options.SyntheticRetryAfter.
const DefaultSyntheticRetryAfter = 30 * time.Second

// syntheticWarning marks a result built by the local generator.
const syntheticWarning = "synthetic dataset"

// Result is one served analysis. Dataset is shared and must not be mutated.
// Origin says how this request was served; Source says who built the
// dataset, so a cached fallback still reads as synthetic.
type Result struct {
	ID        string         `json:"analysisId"`
	Token     string         `json:"token"`
	Origin    string         `json:"origin"` // backend|cache|synthetic
	Source    string         `json:"source"` // backend|synthetic
	Dataset   *graph.Dataset `json:"dataset"`
	Warnings  []string       `json:"warnings,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`

	index      *query.Index
	degenerate []*risk.DegenerateInputWarning
}

// Index returns the query index over the dataset.
func (r *Result) Index() *query.Index {
	return r.index
}

// Verdict is the dataset-level risk band.
func (r *Result) Verdict() risk.DatasetRisk {
	return risk.ClassifyDataset(r.Dataset.RiskScore)
}

// Cards returns the metric summary cards, flagging metrics computed on
// degenerate input.
func (r *Result) Cards() []risk.Card {
	return risk.Cards(r.Dataset.Metrics, r.degenerate...)
}

// Synthetic reports whether the dataset came from the local generator.
func (r *Result) Synthetic() bool {
	return r.Source == observability.OriginSynthetic
}

func newResult(id, token, origin, source string, d *graph.Dataset, warnings []string, at time.Time) *Result {
	_, degenerate := risk.Compute(d.Nodes, d.Links)
	for _, w := range degenerate {
		warnings = append(warnings, w.Error())
	}
	return &Result{
		ID:         id,
		Token:      token,
		Origin:     origin,
		Source:     source,
		Dataset:    d,
		Warnings:   warnings,
		CreatedAt:  at,
		index:      query.NewIndex(d),
		degenerate: degenerate,
	}
}

// Service runs analyses. It is safe for concurrent use; concurrent requests
// for the same token share one run.
type Service struct {
	opts    Options
	store   store.Store
	metrics *observability.Metrics
	flight  singleflight.Group
}

// New validates the generator configuration and creates a service.
func New(opts Options) (*Service, error) {
	if err := opts.Generator.Validate(); err != nil {
		return nil, err
	}
	if opts.Seed == 0 {
		opts.Seed = generator.DefaultSeed
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxPollAttempts <= 0 {
		opts.MaxPollAttempts = 60
	}
	if opts.DaysBack <= 0 {
		opts.DaysBack = 30
	}
	if opts.Producer == "" {
		opts.Producer = "forensics"
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = time.Duration(opts.MaxPollAttempts+1)*opts.PollInterval + time.Minute
	}
	if opts.SyntheticRetryAfter <= 0 {
		opts.SyntheticRetryAfter = DefaultSyntheticRetryAfter
	}
	s := &Service{opts: opts, store: opts.Store, metrics: opts.Metrics}
	if s.store == nil {
		s.store = store.Nop{}
	}
	if s.metrics == nil {
		s.metrics = observability.Default()
	}
	return s, nil
}

// Analyze returns the dataset for token. The address is validated first;
// an invalid address never reaches the cache, backend or generator.
// Backend failures fall back to a synthetic dataset; only an invalid
// address, caller cancellation or a generator failure return an error.
//
// Concurrent calls for one token share a run that is detached from every
// caller's context and bounded by RunTimeout. A caller that gives up gets
// its own context error; the run carries on for the others.
func (s *Service) Analyze(ctx context.Context, token string) (*Result, error) {
	addr, err := NormalizeAddress(token)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis: %s: %w", addr, err)
	}

	ch := s.flight.DoChan(addr, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.RunTimeout)
		defer cancel()
		return s.analyze(runCtx, addr)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("analysis: %s: %w", addr, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			log.Debug().Str("token", addr).Msg("analysis: joined in-flight run")
		}
		return r.Val.(*Result), nil
	}
}

// Cached returns the stored analysis of token without running one.
func (s *Service) Cached(ctx context.Context, token string) (*Result, error) {
	addr, err := NormalizeAddress(token)
	if err != nil {
		return nil, err
	}
	e, err := s.store.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return s.fromEntry(addr, e), nil
}

// fromEntry rebuilds a cached result. With a backend configured, a cached
// fallback keeps its synthetic warning.
func (s *Service) fromEntry(addr string, e *store.Entry) *Result {
	source := e.Origin
	if source != observability.OriginSynthetic {
		source = observability.OriginBackend
	}
	var warnings []string
	if source == observability.OriginSynthetic && s.opts.Backend != nil {
		warnings = append(warnings, "cached fallback: "+syntheticWarning)
	}
	return newResult(e.AnalysisID, addr, observability.OriginCache, source, e.Dataset, warnings, e.StoredAt)
}

// servable reports whether a cache entry may answer a request. A synthetic
// fallback only stands in for the backend until SyntheticRetryAfter passes.
func (s *Service) servable(e *store.Entry, now time.Time) bool {
	if e.Origin != observability.OriginSynthetic || s.opts.Backend == nil {
		return true
	}
	return now.Sub(e.StoredAt) < s.opts.SyntheticRetryAfter
}

// Invalidate drops the cached analysis of token.
func (s *Service) Invalidate(ctx context.Context, token string) error {
	addr, err := NormalizeAddress(token)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, addr)
}

func (s *Service) analyze(ctx context.Context, addr string) (*Result, error) {
	start := time.Now()

	e, err := s.store.Get(ctx, addr)
	switch {
	case err == nil && s.servable(e, time.Now()):
		res := s.fromEntry(addr, e)
		s.metrics.RecordAnalysis(res.Origin, res.Dataset.RiskScore, time.Since(start))
		log.Debug().Str("token", addr).Str("source", res.Source).Msg("analysis: served from cache")
		return res, nil
	case err == nil:
		log.Info().Str("token", addr).Time("stored_at", e.StoredAt).Msg("analysis: retrying backend for synthetic cache entry")
	case !errors.Is(err, store.ErrNotFound):
		log.Warn().Err(err).Str("token", addr).Msg("analysis: cache read failed")
	}

	var warnings []string
	if s.opts.Backend != nil {
		res, err := s.fromBackend(ctx, addr)
		if err == nil {
			s.save(ctx, res)
			s.finish(res, start)
			return res, nil
		}
		reason := fallbackReason(err)
		s.metrics.RecordFallback(reason)
		if reason == "schema" {
			s.metrics.SchemaRejections.Inc()
		}
		log.Warn().Err(err).Str("token", addr).Str("reason", reason).Msg("analysis: backend unavailable, using synthetic data")
		s.publish(bus.AnalysisFallback{
			BaseEvent: bus.NewBaseEvent(bus.TopicAnalysisFallback, s.opts.Producer, ""),
			Token:     addr,
			Reason:    reason,
			Error:     err.Error(),
		})
		warnings = append(warnings, fmt.Sprintf("backend unavailable (%s): %s", reason, syntheticWarning))
	}

	res, err := s.synthesize(addr, warnings)
	if err != nil {
		return nil, err
	}
	s.save(ctx, res)
	s.finish(res, start)
	return res, nil
}

func (s *Service) fromBackend(ctx context.Context, addr string) (*Result, error) {
	sub, err := s.opts.Backend.Submit(ctx, backend.Request{
		TokenAddress: addr,
		DaysBack:     s.opts.DaysBack,
		SampleSize:   s.opts.SampleSize,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("token", addr).Str("analysis_id", sub.AnalysisID).Msg("analysis: submitted to backend")

	_, err = s.opts.Backend.Poll(ctx, sub.AnalysisID, s.opts.PollInterval, s.opts.MaxPollAttempts, func(st backend.Status) {
		s.publish(bus.AnalysisProgress{
			BaseEvent:   bus.NewBaseEvent(bus.TopicAnalysisProgress, s.opts.Producer, sub.AnalysisID),
			Token:       addr,
			Status:      string(st.Status),
			Progress:    st.Progress,
			CurrentStep: st.CurrentStep,
		})
	})
	if err != nil {
		return nil, err
	}

	d, err := s.opts.Backend.Results(ctx, sub.AnalysisID)
	if err != nil {
		return nil, err
	}
	return newResult(sub.AnalysisID, addr, observability.OriginBackend, observability.OriginBackend, d, nil, time.Now().UTC()), nil
}

func (s *Service) synthesize(addr string, warnings []string) (*Result, error) {
	start := time.Now()
	g, err := generator.New(s.opts.Generator, rand.New(rand.NewSource(s.opts.Seed)))
	if err != nil {
		return nil, err
	}
	d, err := g.Generate(addr)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	s.metrics.GenerationSeconds.Observe(time.Since(start).Seconds())
	return newResult(uuid.New().String(), addr, observability.OriginSynthetic, observability.OriginSynthetic, d, warnings, time.Now().UTC()), nil
}

// save stores a fresh result. It outlives a timed-out run so a fallback
// produced after the deadline is still cached.
func (s *Service) save(ctx context.Context, res *Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.store.Put(ctx, &store.Entry{
		Token:      res.Token,
		AnalysisID: res.ID,
		Origin:     res.Source,
		Dataset:    res.Dataset,
		StoredAt:   res.CreatedAt,
	})
	if err != nil {
		log.Warn().Err(err).Str("token", res.Token).Msg("analysis: cache write failed")
	}
}

// finish records and announces a freshly built dataset.
func (s *Service) finish(res *Result, start time.Time) {
	s.metrics.RecordAnalysis(res.Origin, res.Dataset.RiskScore, time.Since(start))
	log.Info().
		Str("token", res.Token).
		Str("analysis_id", res.ID).
		Str("origin", res.Origin).
		Float64("risk_score", res.Dataset.RiskScore).
		Int("nodes", len(res.Dataset.Nodes)).
		Int("links", len(res.Dataset.Links)).
		Dur("took", time.Since(start)).
		Msg("analysis: dataset ready")
	s.publish(bus.DatasetReady{
		BaseEvent: bus.NewBaseEvent(bus.TopicDatasetReady, s.opts.Producer, res.ID),
		Token:     res.Token,
		Origin:    res.Origin,
		RiskScore: res.Dataset.RiskScore,
		Verdict:   res.Verdict().String(),
		Nodes:     len(res.Dataset.Nodes),
		Links:     len(res.Dataset.Links),
		Warnings:  res.Warnings,
	})
}

func (s *Service) publish(e bus.Event) {
	if s.opts.Hub != nil {
		s.opts.Hub.Publish(e)
	}
}

// fallbackReason labels a backend failure for metrics and events.
func fallbackReason(err error) string {
	var (
		schemaErr *graph.SchemaError
		rangeErr  *graph.RangeViolation
		failedErr *backend.AnalysisFailedError
		httpErr   *backend.HTTPError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &rangeErr):
		return "schema"
	case errors.As(err, &failedErr):
		return "failed"
	case errors.Is(err, backend.ErrPollExhausted):
		return "exhausted"
	case errors.As(err, &httpErr):
		return "http_status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

// Package backend is the HTTP client of the remote analysis service: submit
// a token, poll progress, then fetch the validated dataset.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blockstat/forensics/internal/export"
	"github.com/blockstat/forensics/internal/graph"
)

const (
	apiPrefix = "/api/v1"

	maxRetries   = 2
	retryBackoff = 250 * time.Millisecond

	maxErrorBody = 512
)

// Client talks to the analysis backend.
type Client struct {
	baseURL    string
	httpClient *http.Client

	requestCount atomic.Int64
	errorCount   atomic.Int64
	lastLatency  atomic.Int64 // ms
}

// New creates a client for the backend at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Stats is a snapshot of client counters.
type Stats struct {
	Requests      int64 `json:"requests"`
	Errors        int64 `json:"errors"`
	LastLatencyMs int64 `json:"last_latency_ms"`
}

// Stats returns the request counters.
func (c *Client) Stats() Stats {
	return Stats{
		Requests:      c.requestCount.Load(),
		Errors:        c.errorCount.Load(),
		LastLatencyMs: c.lastLatency.Load(),
	}
}

// ---------------------------------------------------------------------------
// Endpoints
// ---------------------------------------------------------------------------

// Submit queues an analysis and returns its id.
func (c *Client) Submit(ctx context.Context, req Request) (*Submission, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal request: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, apiPrefix+"/analyze", nil, body, false)
	if err != nil {
		return nil, err
	}
	var sub Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("backend: parse submission: %w", err)
	}
	if sub.AnalysisID == "" {
		return nil, fmt.Errorf("backend: submission without analysisId")
	}
	log.Info().Str("token", req.TokenAddress).Str("analysis_id", sub.AnalysisID).Msg("backend: analysis submitted")
	return &sub, nil
}

// Status fetches the progress of an analysis.
func (c *Client) Status(ctx context.Context, id string) (*Status, error) {
	raw, err := c.do(ctx, http.MethodGet, apiPrefix+"/analysis/"+url.PathEscape(id)+"/status", nil, nil, true)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("backend: parse status: %w", err)
	}
	return &st, nil
}

// Results fetches a completed analysis. The payload is decoded and validated;
// a malformed dataset yields a *graph.SchemaError.
func (c *Client) Results(ctx context.Context, id string) (*graph.Dataset, error) {
	raw, err := c.do(ctx, http.MethodGet, apiPrefix+"/analysis/"+url.PathEscape(id), nil, nil, true)
	if err != nil {
		return nil, err
	}
	d, err := graph.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("backend: results of %s: %w", id, err)
	}
	return d, nil
}

// Export downloads a rendered export of an analysis.
func (c *Client) Export(ctx context.Context, id string, format export.Format) ([]byte, error) {
	q := url.Values{"format": {string(format)}}
	return c.do(ctx, http.MethodGet, apiPrefix+"/analysis/"+url.PathEscape(id)+"/export", q, nil, true)
}

// List returns a page of recent analyses, newest first.
func (c *Client) List(ctx context.Context, limit, offset int) (*Listing, error) {
	q := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	raw, err := c.do(ctx, http.MethodGet, apiPrefix+"/analyses", q, nil, true)
	if err != nil {
		return nil, err
	}
	var l Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("backend: parse listing: %w", err)
	}
	return &l, nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	raw, err := c.do(ctx, http.MethodGet, apiPrefix+"/health", nil, nil, false)
	if err != nil {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("backend: parse health: %w", err)
	}
	return &h, nil
}

// Poll fetches the status of id every interval until it completes or fails,
// at most maxAttempts times. onProgress, if set, sees every status.
func (c *Client) Poll(ctx context.Context, id string, interval time.Duration, maxAttempts int, onProgress func(Status)) (*Status, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st, err := c.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(*st)
		}
		switch st.Status {
		case StateCompleted:
			return st, nil
		case StateFailed:
			return st, &AnalysisFailedError{AnalysisID: id, Message: st.ErrorMessage}
		}

		log.Debug().
			Str("analysis_id", id).
			Str("state", string(st.Status)).
			Int("progress", st.Progress).
			Int("attempt", attempt).
			Msg("backend: analysis in progress")

		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrPollExhausted, id, maxAttempts)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// do performs one request. Idempotent requests are retried with exponential
// backoff on transport errors and 5xx/429 responses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, retry bool) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	attempts := 1
	if retry {
		attempts += maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := c.once(ctx, method, u, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		c.errorCount.Add(1)
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, u string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.requestCount.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.lastLatency.Store(time.Since(start).Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(raw)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: msg}
	}
	return raw, nil
}

func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}

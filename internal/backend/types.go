package backend

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle state of a backend analysis.
type State string

const (
	StateQueued            State = "queued"
	StateFetchingData      State = "fetching_data"
	StateBuildingGraph     State = "building_graph"
	StateDetectingPatterns State = "detecting_patterns"
	StateCompleted         State = "completed"
	StateFailed            State = "failed"
)

// Terminal reports whether the analysis has finished, successfully or not.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Request submits a token for analysis.
type Request struct {
	TokenAddress string `json:"tokenAddress"`
	DaysBack     int    `json:"daysBack"`
	SampleSize   int    `json:"sampleSize,omitempty"`
}

// Submission is the backend's acknowledgement of a Request.
type Submission struct {
	AnalysisID string    `json:"analysisId"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status is one poll of analysis progress.
type Status struct {
	AnalysisID    string            `json:"analysisId"`
	Status        State             `json:"status"`
	Progress      int               `json:"progress"` // 0-100
	CurrentStep   string            `json:"currentStep"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	StepTimings   map[string]string `json:"stepTimings,omitempty"`   // e.g. "1.20s" per step
	TotalDuration string            `json:"totalDuration,omitempty"` // e.g. "3.40s"
}

// Summary is one row of the recent-analyses listing.
type Summary struct {
	ID           string     `json:"id"`
	TokenAddress string     `json:"tokenAddress"`
	Status       State      `json:"status"`
	RiskScore    *float64   `json:"riskScore,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Listing is a page of recent analyses.
type Listing struct {
	Total    int       `json:"total"`
	Analyses []Summary `json:"analyses"`
}

// Health is the backend health payload.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// ErrPollExhausted is returned when an analysis is still running after the
// last permitted poll.
var ErrPollExhausted = errors.New("backend: analysis still running after max poll attempts")

// AnalysisFailedError reports an analysis the backend marked as failed.
type AnalysisFailedError struct {
	AnalysisID string
	Message    string
}

func (e *AnalysisFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: analysis %s failed", e.AnalysisID)
	}
	return fmt.Sprintf("backend: analysis %s failed: %s", e.AnalysisID, e.Message)
}

// HTTPError is a non-2xx backend response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend: HTTP %d: %s", e.StatusCode, e.Body)
}

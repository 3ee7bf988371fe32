// Package bus is the in-process event hub that carries analysis lifecycle
// events from the analysis service to websocket subscribers.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion of the event envelopes below.
const SchemaVersion = "1.0.0"

// Topics.
const (
	TopicDatasetReady     = "dataset_ready"
	TopicAnalysisProgress = "analysis_progress"
	TopicAnalysisFallback = "analysis_fallback"
)

// BaseEvent contains fields common to all events.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"ts"`
	SchemaVersion string    `json:"schema_version"`
	Producer      string    `json:"producer"`
	CorrelationID string    `json:"correlation_id,omitempty"` // analysis id
}

// NewBaseEvent creates a BaseEvent with a fresh id.
func NewBaseEvent(topic, producer, correlationID string) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		Type:          topic,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		Producer:      producer,
		CorrelationID: correlationID,
	}
}

// Event is anything published on the hub.
type Event interface {
	Topic() string
	Base() BaseEvent
}

// DatasetReady announces a finished analysis.
type DatasetReady struct {
	BaseEvent
	Token     string   `json:"token"`
	Origin    string   `json:"origin"` // backend|cache|synthetic
	RiskScore float64  `json:"risk_score"`
	Verdict   string   `json:"verdict"` // SAFE|CAUTION|DANGER
	Nodes     int      `json:"nodes"`
	Links     int      `json:"links"`
	Warnings  []string `json:"warnings,omitempty"`
}

// AnalysisProgress relays a backend status poll.
type AnalysisProgress struct {
	BaseEvent
	Token       string `json:"token"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step,omitempty"`
}

// AnalysisFallback reports that the backend failed and synthetic data is
// being served instead.
type AnalysisFallback struct {
	BaseEvent
	Token  string `json:"token"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

func (e DatasetReady) Topic() string     { return TopicDatasetReady }
func (e AnalysisProgress) Topic() string { return TopicAnalysisProgress }
func (e AnalysisFallback) Topic() string { return TopicAnalysisFallback }

func (e DatasetReady) Base() BaseEvent     { return e.BaseEvent }
func (e AnalysisProgress) Base() BaseEvent { return e.BaseEvent }
func (e AnalysisFallback) Base() BaseEvent { return e.BaseEvent }

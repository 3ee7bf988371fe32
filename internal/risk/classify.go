package risk

import (
	"fmt"
	"math"

	"github.com/blockstat/forensics/internal/graph"
)

// NodeRisk is the display band of a wallet risk score.
type NodeRisk int

const (
	NodeRiskUnknown NodeRisk = iota // no score supplied
	NodeRiskLow
	NodeRiskMedium
	NodeRiskHigh // HIGH/CRITICAL
)

func (r NodeRisk) String() string {
	switch r {
	case NodeRiskLow:
		return "LOW"
	case NodeRiskMedium:
		return "MEDIUM"
	case NodeRiskHigh:
		return "HIGH/CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ClassifyScore bands a 0-100 wallet score: <30 LOW, [30,60) MEDIUM,
// >=60 HIGH/CRITICAL.
func ClassifyScore(score float64) NodeRisk {
	switch {
	case score < MediumScoreFloor:
		return NodeRiskLow
	case score < HighScoreFloor:
		return NodeRiskMedium
	default:
		return NodeRiskHigh
	}
}

// ClassifyNode bands a node's score; a node without a score is UNKNOWN.
// A score of exactly 0 is LOW, not UNKNOWN.
func ClassifyNode(n graph.Node) NodeRisk {
	score, ok := n.Score()
	if !ok {
		return NodeRiskUnknown
	}
	return ClassifyScore(score)
}

// DatasetRisk is the verdict band of the overall token score.
type DatasetRisk int

const (
	DatasetSafe DatasetRisk = iota
	DatasetCaution
	DatasetDanger
)

func (r DatasetRisk) String() string {
	switch r {
	case DatasetCaution:
		return "CAUTION"
	case DatasetDanger:
		return "DANGER"
	default:
		return "SAFE"
	}
}

// ClassifyDataset bands the token score: <30 SAFE, [30,60) CAUTION, >=60 DANGER.
func ClassifyDataset(score float64) DatasetRisk {
	switch ClassifyScore(score) {
	case NodeRiskLow:
		return DatasetSafe
	case NodeRiskMedium:
		return DatasetCaution
	default:
		return DatasetDanger
	}
}

// ProbabilityBucket is one of five equal-width bands of a [0,1] probability.
type ProbabilityBucket int

const (
	BucketSafe ProbabilityBucket = iota
	BucketLow
	BucketModerate
	BucketElevated
	BucketSevere
)

// NumProbabilityBuckets is the number of ProbabilityBucket values.
const NumProbabilityBuckets = int(BucketSevere) + 1

// BucketProbability maps a dumping probability onto its bucket. Lower bounds
// are inclusive; values outside [0,1] fall into the end buckets and NaN,
// which carries no evidence, is BucketSafe.
func BucketProbability(p float64) ProbabilityBucket {
	if math.IsNaN(p) {
		return BucketSafe
	}
	b := BucketSafe
	for _, floor := range probabilityFloors {
		if p < floor {
			break
		}
		b++
	}
	return b
}

// MetricKey identifies a dataset-level metric.
type MetricKey int

const (
	MetricGini MetricKey = iota
	MetricWashTrading
	MetricMixerConnections
	MetricSuspiciousClusters
)

// Field is the metric's name in the dataset document, as carried by
// DegenerateInputWarning.Metric.
func (k MetricKey) Field() string {
	switch k {
	case MetricGini:
		return "giniCoefficient"
	case MetricWashTrading:
		return "washTradingScore"
	case MetricMixerConnections:
		return "mixerConnectionsCount"
	case MetricSuspiciousClusters:
		return "suspiciousClustersDetected"
	}
	return ""
}

// Emphasized reports whether the metric crosses its emphasis trigger.
func Emphasized(key MetricKey, m graph.Metrics) bool {
	switch key {
	case MetricGini:
		return m.GiniCoefficient > GiniEmphasis
	case MetricWashTrading:
		return m.WashTradingScore > WashTradingEmphasis
	case MetricMixerConnections:
		return m.MixerConnectionsCount > MixerConnectionsEmphasis
	case MetricSuspiciousClusters:
		return m.SuspiciousClustersDetected > SuspiciousClusterEmphasis
	}
	return false
}

// InsufficientDataValue replaces the value of a card whose metric was
// computed on degenerate input.
const InsufficientDataValue = "insufficient data"

// Card is the summary-card view of one metric.
type Card struct {
	Key              MetricKey `json:"-"`
	Label            string    `json:"label"`
	Value            string    `json:"value"`
	Description      string    `json:"description"`
	Emphasized       bool      `json:"emphasized"`
	InsufficientData bool      `json:"insufficientData"`
}

// Cards returns the four metric cards in display order. A card whose metric
// is named by one of the degenerate warnings is marked InsufficientData,
// shows InsufficientDataValue and is never emphasized.
func Cards(m graph.Metrics, degenerate ...*DegenerateInputWarning) []Card {
	cards := []Card{
		{
			Key:         MetricGini,
			Label:       "GINI COEFFICIENT",
			Value:       fmt.Sprintf("%.2f", m.GiniCoefficient),
			Description: "Wealth concentration (0-1)",
		},
		{
			Key:         MetricWashTrading,
			Label:       "WASH TRADING SCORE",
			Value:       fmt.Sprintf("%.1f%%", m.WashTradingScore),
			Description: "Suspicious trading patterns",
		},
		{
			Key:         MetricMixerConnections,
			Label:       "MIXER CONNECTIONS",
			Value:       fmt.Sprintf("%d", m.MixerConnectionsCount),
			Description: "Privacy mixer links detected",
		},
		{
			Key:         MetricSuspiciousClusters,
			Label:       "SUSPICIOUS CLUSTERS",
			Value:       fmt.Sprintf("%d", m.SuspiciousClustersDetected),
			Description: "Coordinated wallet groups",
		},
	}
	for i := range cards {
		c := &cards[i]
		if insufficient(c.Key, degenerate) {
			c.Value = InsufficientDataValue
			c.InsufficientData = true
			continue
		}
		c.Emphasized = Emphasized(c.Key, m)
	}
	return cards
}

func insufficient(key MetricKey, degenerate []*DegenerateInputWarning) bool {
	for _, w := range degenerate {
		if w != nil && w.Metric == key.Field() {
			return true
		}
	}
	return false
}

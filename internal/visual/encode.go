package visual

import (
	"math"

	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/risk"
)

// SizeRange is the pixel interval a size scale interpolates over.
type SizeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DefaultNodeSizes is the holdings scale of the main graph.
var DefaultNodeSizes = SizeRange{Min: 4, Max: 20}

// Edge width scale: base + ratio*span.
const (
	edgeBaseWidth = 0.5
	edgeWidthSpan = 3.0
)

// NodeColor returns the node fill: Highlight when selected, otherwise the
// group colour. Unknown groups render as normal wallets.
func NodeColor(g graph.Group, highlighted bool) string {
	if highlighted {
		return Highlight
	}
	if !g.Valid() {
		return groupColors[graph.GroupNormal]
	}
	return groupColors[g]
}

// ratio returns value/maxValue clamped to [0,1]. A non-positive or NaN
// maximum yields 0, so empty and all-zero datasets render at minimum size.
func ratio(value, maxValue float64) float64 {
	if !(maxValue > 0) || math.IsNaN(value) {
		return 0
	}
	return math.Min(math.Max(value/maxValue, 0), 1)
}

// NodeSize interpolates holdings linearly between r.Min and r.Max.
func NodeSize(value, maxValue float64, r SizeRange) float64 {
	return r.Min + ratio(value, maxValue)*(r.Max-r.Min)
}

// RiskSize sizes a point of the dumping-risk matrix by its risk score.
func RiskSize(score, maxScore float64, r SizeRange) float64 {
	return NodeSize(score, maxScore, r)
}

// EdgeWidth is 0.5 + value/maxValue*3.
func EdgeWidth(value, maxValue float64) float64 {
	return edgeBaseWidth + ratio(value, maxValue)*edgeWidthSpan
}

// EdgeColor returns the colour of a link type; value does not matter.
func EdgeColor(t graph.LinkType) string {
	if !t.Valid() {
		return linkColors[graph.LinkTransfer]
	}
	return linkColors[t]
}

// ProbabilityColor returns the five-step dumping-probability colour.
func ProbabilityColor(p float64) string {
	return probabilityColors[risk.BucketProbability(p)]
}

// RiskScoreColor colours a 0-100 risk score by its band.
func RiskScoreColor(score float64) string {
	return scoreColors[risk.ClassifyScore(score)]
}

// RiskLevelColor colours a severity. Unknown levels render as low.
func RiskLevelColor(level graph.RiskLevel) string {
	if !level.Valid() {
		return riskLevelColors[graph.RiskLow]
	}
	return riskLevelColors[level]
}

// MixerNodeColor colours a node of the mixer-exposure view. Mixers are
// always pink; wallets step from cyan through yellow to pink as exposure
// risk (0-1) rises.
func MixerNodeColor(isMixer bool, exposure float64, highlighted bool) string {
	switch {
	case highlighted:
		return Highlight
	case isMixer:
		return MixerColor
	}
	exposure = math.Min(math.Max(exposure, 0), 1)
	switch {
	case math.IsNaN(exposure) || exposure < lowExposureCeiling:
		return LowExposureColor
	case exposure < midExposureCeiling:
		return MidExposureColor
	default:
		return HighExposureColor
	}
}

// MixerNodeSize returns the fixed node size of the mixer-exposure view.
func MixerNodeSize(isMixer bool) float64 {
	if isMixer {
		return MixerSize
	}
	return ExposedWalletSize
}

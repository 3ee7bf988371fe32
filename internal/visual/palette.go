// Package visual maps forensic entities to render attributes: colours,
// node sizes and edge widths. Every function is pure and total.
package visual

import (
	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/risk"
)

// Highlight is the accent colour of the selected node in every view.
const Highlight = "#ffff00"

var groupColors = [...]string{
	graph.GroupNormal:     "#00ff41",
	graph.GroupSuspicious: "#ff0055",
	graph.GroupDeployer:   "#ffaa00",
	graph.GroupMixer:      "#ff6600",
}

var linkColors = [...]string{
	graph.LinkTransfer: "rgba(0, 255, 65, 0.15)",
	graph.LinkTrade:    "rgba(0, 255, 65, 0.2)",
	graph.LinkWash:     "rgba(255, 0, 85, 0.3)",
	graph.LinkMixer:    "rgba(255, 102, 0, 0.3)",
}

var riskLevelColors = [...]string{
	graph.RiskLow:      "#00ff41",
	graph.RiskMedium:   "#ffaa00",
	graph.RiskHigh:     "#ff5500",
	graph.RiskCritical: "#ff0000",
}

var probabilityColors = [...]string{
	risk.BucketSafe:     "#00ff41",
	risk.BucketLow:      "#88ff00",
	risk.BucketModerate: "#ffaa00",
	risk.BucketElevated: "#ff5500",
	risk.BucketSevere:   "#ff0055",
}

var scoreColors = [...]string{
	risk.NodeRiskLow:    "#00ff41",
	risk.NodeRiskMedium: "#ffaa00",
	risk.NodeRiskHigh:   "#ff0055",
}

// Adding an enum value without a colour breaks the build here.
var (
	_ = [1]struct{}{}[len(groupColors)-1-graph.NumGroups]
	_ = [1]struct{}{}[len(linkColors)-1-graph.NumLinkTypes]
	_ = [1]struct{}{}[len(riskLevelColors)-1-graph.NumRiskLevels]
	_ = [1]struct{}{}[len(probabilityColors)-risk.NumProbabilityBuckets]
)

// Mixer-exposure view.
const (
	MixerColor        = "#ff0055"
	LowExposureColor  = "#00ffff"
	MidExposureColor  = "#ffff00"
	HighExposureColor = "#ff0055"
	MixerLinkColor    = "rgba(0, 255, 255, 0.3)"
	MixerLinkWidth    = 1.0
	MixerSize         = 15.0
	ExposedWalletSize = 10.0

	lowExposureCeiling = 0.33
	midExposureCeiling = 0.66
)
